// Package keystore keeps the per-file encryption keys returned by the server,
// indexed by remote identifier. The store is persisted as a JSON object, or
// sealed under a passphrase with argon2id and AES-GCM.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/cryptox"
)

// SealedFormat tags a passphrase-protected key file.
const SealedFormat = "securexfer-sealed-v1"

// ErrPassphraseRequired is returned by Load for a sealed file without a passphrase.
var ErrPassphraseRequired = errors.New("key store is sealed: passphrase required")

type sealedFile struct {
	Format     string `json:"format"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Store maps remote identifiers to hex-encoded keys. It is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	keys map[string]string
}

func New() *Store {
	return &Store{keys: make(map[string]string)}
}

func (s *Store) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	return k, ok
}

func (s *Store) Set(id, hexKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = hexKey
}

// Delete reports whether id was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[id]
	delete(s.keys, id)
	return ok
}

// All returns a copy of the mapping.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.keys))
	for k, v := range s.keys {
		out[k] = v
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Save writes the keys as an indented JSON object.
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(s.All(), "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// SaveSealed writes the keys encrypted under passphrase.
func (s *Store) SaveSealed(path string, passphrase []byte) error {
	if len(passphrase) == 0 {
		return ErrPassphraseRequired
	}

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	key := cryptox.DeriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	ciphertext, nonce, err := cryptox.SealJSON(s.All(), key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(sealedFile{
		Format:     SealedFormat,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// Load replaces the in-memory keys with the contents of path. A missing file
// yields common.ErrNotFound and leaves the store untouched. passphrase is
// only consulted for sealed files.
func (s *Store) Load(path string, passphrase []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, path)
		}
		return fmt.Errorf("%w: %v", common.ErrFilesystem, err)
	}

	keys, err := decode(data, passphrase)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	return nil
}

// IsSealed reports whether the file at path is passphrase-protected.
func IsSealed(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var sf sealedFile
	if json.Unmarshal(data, &sf) != nil {
		return false, nil
	}
	return sf.Format == SealedFormat, nil
}

func decode(data, passphrase []byte) (map[string]string, error) {
	var sf sealedFile
	if err := json.Unmarshal(data, &sf); err == nil && sf.Format == SealedFormat {
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		key := cryptox.DeriveKey(passphrase, sf.Salt)
		defer common.WipeByteArray(key)

		keys := make(map[string]string)
		if err := cryptox.OpenJSON(sf.Ciphertext, sf.Nonce, key, &keys); err != nil {
			return nil, err
		}
		return keys, nil
	}

	keys := make(map[string]string)
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: key file: %v", common.ErrMalformedMessage, err)
	}
	return keys, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%w: %v", common.ErrFilesystem, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrFilesystem, err)
	}
	return nil
}
