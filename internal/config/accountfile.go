package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AccountFileName is a per-project file naming the account to use for
// commands run inside that directory tree.
const AccountFileName = ".hublinkaccount"

// FindAccountFile walks up from dir looking for an AccountFileName file.
// It returns the file path and its trimmed content, or empty strings when
// no file is found.
func FindAccountFile(dir string) (string, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	for {
		p := filepath.Join(abs, AccountFileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("reading %s: %w", p, err)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", "", nil
		}
		abs = parent
	}
}

// DefaultAccountForDir returns the account selected by an account file in
// dir or its parents, falling back to the configured default account.
func (c *CLIConfiguration) DefaultAccountForDir(dir string) (*Account, error) {
	path, override, err := FindAccountFile(dir)
	if err != nil {
		return nil, err
	}
	if override == "" {
		return c.DefaultAccount()
	}
	a, err := c.Account(override)
	if err != nil {
		return nil, fmt.Errorf("%s names %q: %w", path, override, err)
	}
	return a, nil
}

// ResolveAccount picks the account for a command: an explicit selector
// wins, then an account file in dir, then the default account.
func (c *CLIConfiguration) ResolveAccount(nameOrID, dir string) (*Account, error) {
	if nameOrID != "" {
		return c.Account(nameOrID)
	}
	return c.DefaultAccountForDir(dir)
}
