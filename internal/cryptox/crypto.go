// Package cryptox is the at-rest encryption layer: key generation and
// normalization, whole-file AES-256-CBC with a random per-file IV, plus the
// AES-GCM and argon2 helpers used to seal small JSON documents such as the
// client key store.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the CBC initialization vector length, one AES block.
	IVSize = aes.BlockSize
	// SaltSize is the argon2 salt length used by DeriveKey callers.
	SaltSize = 16
)

// NewKey returns a fresh random 32-byte key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// KeyFromBytes normalizes raw key material: 32 bytes are used as-is, any
// other length is reduced to 32 bytes with SHA-256.
func KeyFromBytes(material []byte) []byte {
	if len(material) == KeySize {
		return append([]byte(nil), material...)
	}
	sum := sha256.Sum256(material)
	return sum[:]
}

// KeyFromString normalizes textual key material. A hex string is decoded
// first: 32 decoded bytes are used directly, other lengths are hashed.
// Anything that is not hex is hashed as UTF-8.
func KeyFromString(s string) []byte {
	s = strings.TrimSpace(s)
	if decoded, err := hex.DecodeString(s); err == nil && len(decoded) > 0 {
		return KeyFromBytes(decoded)
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// ParseHexKey strictly decodes a hex key as sent on the wire. It does not
// normalize; it only rejects text that is not hex.
func ParseHexKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidKeyFormat, err)
	}
	return b, nil
}

// KeyHex renders a key as lowercase hex.
func KeyHex(key []byte) string {
	return hex.EncodeToString(key)
}

// EncryptFile encrypts path into path+".enc" and returns the new path.
func EncryptFile(path string, key []byte) (string, error) {
	out := path + common.EncryptedSuffix
	if err := EncryptFileTo(path, out, key); err != nil {
		return "", err
	}
	return out, nil
}

// EncryptFileTo reads in fully, encrypts it under key with AES-256-CBC and
// PKCS#7 padding, and writes IV||ciphertext to out. A fresh IV is drawn on
// every call. out is removed if anything fails after it was created.
func EncryptFileTo(in, out string, key []byte) (err error) {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidKeyFormat, KeySize, len(key))
	}

	plaintext, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrFilesystem, in, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidKeyFormat, err)
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return writeOrRemove(out, iv, ciphertext)
}

// DecryptFile decrypts path and returns the output path: a trailing ".enc"
// is stripped, otherwise ".dec" is appended.
func DecryptFile(path string, key []byte) (string, error) {
	out := path + ".dec"
	if strings.HasSuffix(path, common.EncryptedSuffix) {
		out = strings.TrimSuffix(path, common.EncryptedSuffix)
	}
	if err := DecryptFileTo(path, out, key); err != nil {
		return "", err
	}
	return out, nil
}

// DecryptFileTo reverses EncryptFileTo. Truncated input, a wrong key or bad
// padding all surface as common.ErrDecryptionFailed, and out never survives
// a failure.
func DecryptFileTo(in, out string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidKeyFormat, KeySize, len(key))
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrFilesystem, in, err)
	}
	if len(data) < IVSize+aes.BlockSize || (len(data)-IVSize)%aes.BlockSize != 0 {
		_ = os.Remove(out)
		return fmt.Errorf("%w: ciphertext length %d is not IV plus whole blocks", common.ErrDecryptionFailed, len(data))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidKeyFormat, err)
	}

	iv, ciphertext := data[:IVSize], data[IVSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	return writeOrRemove(out, plaintext)
}

func writeOrRemove(path string, parts ...[]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrFilesystem, path, err)
	}
	for _, p := range parts {
		if _, err := f.Write(p); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return fmt.Errorf("%w: write %s: %v", common.ErrFilesystem, path, err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: close %s: %v", common.ErrFilesystem, path, err)
	}
	return nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("padded length %d is not a multiple of %d", len(b), blockSize)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("padding byte %d out of range", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("padding bytes are inconsistent")
		}
	}
	return b[:len(b)-n], nil
}

// DeriveKey stretches a passphrase into a 32-byte key with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// SealJSON serializes v to JSON and encrypts it with AES-GCM under key.
// A new random 12-byte nonce is generated for each call.
func SealJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// OpenJSON decrypts a SealJSON result into v. Authentication failures
// (wrong key, tampered data) surface as common.ErrDecryptionFailed.
func OpenJSON(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return fmt.Errorf("%w: nonce must be %d bytes", common.ErrDecryptionFailed, aesgcm.NonceSize())
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidKeyFormat, err)
	}
	return cipher.NewGCM(block)
}
