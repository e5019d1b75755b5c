//go:build windows

package keyring

import "os"

// lockFile is a no-op on Windows. Credential Manager is the primary backend
// there, and the file backend's O_EXCL create still prevents overwrites.
func lockFile(_ *os.File) (func(), error) {
	return func() {}, nil
}
