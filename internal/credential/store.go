package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/majorcontext/hublink/internal/credential/keyring"
	"github.com/majorcontext/hublink/internal/log"
)

const fileExt = ".enc"

// FileStore implements Store with one AES-GCM sealed file per key.
type FileStore struct {
	dir  string
	aead cipher.AEAD
}

// NewFileStore creates a file-based credential store.
// key must be 32 bytes for AES-256.
func NewFileStore(dir string, key []byte) (*FileStore, error) {
	if len(key) != keyring.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyring.KeySize, len(key))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating credential dir: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &FileStore{dir: dir, aead: aead}, nil
}

// OpenDefault opens the store under ~/.hublink/credentials with the key
// from the system keychain (or its file fallback).
func OpenDefault() (*FileStore, error) {
	key, err := keyring.GetOrCreateKey()
	if err != nil {
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}
	return NewFileStore(DefaultStoreDir(), key)
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, string(key)+fileExt)
}

// Save encrypts and writes cred under cred.Key. The key is also bound as
// additional data so a file renamed to another key fails to open.
func (s *FileStore) Save(cred Credential) error {
	if cred.Key == "" {
		return errors.New("credential key is required")
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, data, []byte(cred.Key))

	tmp := s.path(cred.Key) + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path(cred.Key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing credential file: %w", err)
	}
	log.Debug("cached credential", "key", cred.Key, "expires_at", cred.ExpiresAt)
	return nil
}

// Get returns the credential stored under key, or ErrNotFound.
func (s *FileStore) Get(key Key) (*Credential, error) {
	sealed, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("credential file for %s is truncated", key)
	}
	data, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("decrypting credential for %s: %w\n"+
			"  The encryption key may have changed. Cached tokens are re-created\n"+
			"  on demand, so it is safe to remove %s", key, err, s.path(key))
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("unmarshaling credential: %w", err)
	}
	return &cred, nil
}

// Delete removes the credential under key. Missing keys are not an error.
func (s *FileStore) Delete(key Key) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// List returns every readable credential. Files that fail to decrypt are
// skipped and logged.
func (s *FileStore) List() ([]Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading credential dir: %w", err)
	}

	creds := make([]Credential, 0, len(entries))
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), fileExt)
		if !ok || entry.IsDir() {
			continue
		}
		cred, err := s.Get(Key(name))
		if err != nil {
			log.Debug("skipping unreadable credential", "key", name, "error", err)
			continue
		}
		creds = append(creds, *cred)
	}
	return creds, nil
}

// DefaultStoreDir returns the default credential store directory.
func DefaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".hublink", "credentials")
	}
	return filepath.Join(home, ".hublink", "credentials")
}
