// Package keyring keeps the 32-byte key that encrypts hublink's credential
// cache. The system keychain is tried first; when it is unavailable
// (CI, containers, headless Linux without libsecret) the key lives in
// ~/.hublink/encryption.key with mode 0600.
//
// Key creation runs under an exclusive lock on ~/.hublink/key.lock so two
// processes starting at once agree on a single key. Neither backend
// overwrites an existing key.
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/majorcontext/hublink/internal/log"
)

const (
	// ServiceName is the keychain service. HUBLINK_KEYRING_SERVICE overrides
	// it so tests don't touch the real entry.
	ServiceName = "hublink"
	// AccountName is the keychain account holding the key.
	AccountName = "encryption-key"
	// KeySize is the key length in bytes.
	KeySize = 32
)

// ErrInsecurePermissions is returned when the key file is readable by others.
var ErrInsecurePermissions = errors.New("key file has insecure permissions")

// ErrNoHomeDirectory is returned when no home directory can hold the key file.
var ErrNoHomeDirectory = errors.New("could not determine home directory for secure key storage")

func serviceName() string {
	if name := os.Getenv("HUBLINK_KEYRING_SERVICE"); name != "" {
		return name
	}
	return ServiceName
}

func homeDir() (string, error) {
	if home, err := os.UserHomeDir(); err == nil {
		return home, nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	return "", fmt.Errorf("%w: set $HOME", ErrNoHomeDirectory)
}

func encodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Backend stores the key somewhere.
type Backend interface {
	Get() ([]byte, error)
	// Set stores key unless a key is already present.
	Set(key []byte) error
	Delete() error
	Name() string
}

type keychainBackend struct {
	service string
}

func (k *keychainBackend) Get() ([]byte, error) {
	encoded, err := keyring.Get(k.service, AccountName)
	if err != nil {
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return decodeKey(encoded)
}

func (k *keychainBackend) Set(key []byte) error {
	if _, err := keyring.Get(k.service, AccountName); err == nil {
		return nil
	}
	if err := keyring.Set(k.service, AccountName, encodeKey(key)); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

func (k *keychainBackend) Delete() error {
	if err := keyring.Delete(k.service, AccountName); err != nil {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

func (k *keychainBackend) Name() string { return "system keychain" }

type fileBackend struct {
	path string
}

func (f *fileBackend) Get() ([]byte, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has permissions %04o (expected 0600).\n"+
			"  Run: chmod 600 %s\n"+
			"  then re-authenticate with: hublink auth",
			ErrInsecurePermissions, f.path, perm, f.path)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return decodeKey(strings.TrimSpace(string(data)))
}

func (f *fileBackend) Set(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	// O_EXCL keeps a key written by a concurrent process.
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("writing key file: %w", err)
	}
	if _, err := fh.WriteString(encodeKey(key)); err != nil {
		fh.Close()
		os.Remove(f.path)
		return fmt.Errorf("writing key file: %w", err)
	}
	return fh.Close()
}

func (f *fileBackend) Delete() error {
	if f.path == "" {
		return errors.New("no key file path")
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting key file: %w", err)
	}
	return nil
}

func (f *fileBackend) Name() string { return "file (" + f.path + ")" }

// DefaultKeyFilePath returns the absolute path of the fallback key file.
// With HUBLINK_KEYRING_SERVICE set the file is named after the service.
func DefaultKeyFilePath() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	name := "encryption.key"
	if s := os.Getenv("HUBLINK_KEYRING_SERVICE"); s != "" {
		name = s + ".key"
	}
	return filepath.Join(home, ".hublink", name), nil
}

func generateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

func withKeyLock(dir string, fn func() ([]byte, error)) ([]byte, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lf, err := os.OpenFile(filepath.Join(dir, "key.lock"), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating key lock file: %w", err)
	}
	defer lf.Close()

	unlock, err := lockFile(lf)
	if err != nil {
		return nil, fmt.Errorf("acquiring key lock: %w", err)
	}
	defer unlock()
	return fn()
}

// getOrCreate returns the stored key, creating one in primary (or fallback
// when primary refuses) if neither backend has it. The result is always
// re-read from the backend that accepted the write.
func getOrCreate(primary, fallback Backend) ([]byte, error) {
	if key, err := primary.Get(); err == nil {
		return key, nil
	}
	if key, err := fallback.Get(); err == nil {
		return key, nil
	} else if errors.Is(err, ErrInsecurePermissions) {
		return nil, err
	}

	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	primaryErr := primary.Set(key)
	if primaryErr == nil {
		stored, err := primary.Get()
		if err != nil {
			return nil, fmt.Errorf("verifying key in %s: %w", primary.Name(), err)
		}
		return stored, nil
	}

	log.Info("system keychain unavailable, using file-based key storage", "fallback", fallback.Name())
	if err := fallback.Set(key); err != nil {
		return nil, fmt.Errorf("storing encryption key failed.\n"+
			"  %s: %v\n"+
			"  %s: %v\n"+
			"Make sure ~/.hublink is writable or the system keychain is accessible",
			primary.Name(), primaryErr, fallback.Name(), err)
	}
	stored, err := fallback.Get()
	if err != nil {
		return nil, fmt.Errorf("verifying stored key: %w", err)
	}
	return stored, nil
}

// GetOrCreateKey returns the credential encryption key, generating and
// storing one on first use.
func GetOrCreateKey() ([]byte, error) {
	path, err := DefaultKeyFilePath()
	if err != nil {
		return nil, err
	}
	return withKeyLock(filepath.Dir(path), func() ([]byte, error) {
		return getOrCreate(&keychainBackend{service: serviceName()}, &fileBackend{path: path})
	})
}

// DeleteKey removes the key from both backends. It fails only if neither
// delete succeeded.
func DeleteKey() error {
	path, err := DefaultKeyFilePath()
	if err != nil {
		log.Debug("no key file path for deletion", "error", err)
	}
	kcErr := (&keychainBackend{service: serviceName()}).Delete()
	fileErr := (&fileBackend{path: path}).Delete()
	if kcErr != nil && fileErr != nil {
		return fmt.Errorf("deleting key: %w", errors.Join(
			fmt.Errorf("keychain: %w", kcErr),
			fmt.Errorf("file: %w", fileErr),
		))
	}
	return nil
}
