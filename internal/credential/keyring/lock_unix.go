//go:build !windows

package keyring

import (
	"os"
	"syscall"
)

// lockFile takes an exclusive flock on f and returns its release func.
func lockFile(f *os.File) (func(), error) {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }, nil
}
