package common

// DefaultKeysFile is the key-store file used when the caller does not name one.
const DefaultKeysFile = "file_keys.json"

// EncryptedSuffix is appended to files produced by the encryption layer.
const EncryptedSuffix = ".enc"
