package api

import (
	"context"
	"fmt"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/transport"
)

// Sandbox type names accepted by the sandbox API.
const (
	SandboxStandard  = "STANDARD"
	SandboxDeveloper = "DEVELOPER"
)

// Sandbox is a sandbox account owned by a parent account.
type Sandbox struct {
	SandboxHubID int64  `json:"sandboxHubId"`
	ParentHubID  int64  `json:"parentHubId"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Domain       string `json:"domain"`
	CreatedAt    string `json:"createdAt"`
}

// AccountType maps the sandbox type to the account type recorded in the
// config.
func (s *Sandbox) AccountType() config.AccountType {
	if s.Type == SandboxDeveloper {
		return config.AccountDeveloperSandbox
	}
	return config.AccountStandardSandbox
}

// CreatedSandbox is the response to CreateSandbox. PersonalAccessKey is
// set so the CLI can add the new sandbox as an account right away.
type CreatedSandbox struct {
	Sandbox           Sandbox `json:"sandbox"`
	PersonalAccessKey string  `json:"personalAccessKey"`
}

type createSandboxRequest struct {
	Name                      string `json:"name"`
	Type                      string `json:"type"`
	GeneratePersonalAccessKey bool   `json:"generatePersonalAccessKey"`
}

// CreateSandbox creates a sandbox under the parent accountID.
func CreateSandbox(ctx context.Context, c *transport.Client, accountID int64, name, sandboxType string) (*CreatedSandbox, error) {
	if sandboxType != SandboxStandard && sandboxType != SandboxDeveloper {
		return nil, fmt.Errorf("unknown sandbox type %q (want %s or %s)", sandboxType, SandboxStandard, SandboxDeveloper)
	}
	var out CreatedSandbox
	body := createSandboxRequest{Name: name, Type: sandboxType, GeneratePersonalAccessKey: true}
	if err := c.Post(ctx, accountID, SandboxHubsPath, body, &out); err != nil {
		return nil, fmt.Errorf("creating sandbox %s: %w", name, err)
	}
	return &out, nil
}

// DeleteSandbox deletes sandboxID, a sandbox of the parent accountID.
func DeleteSandbox(ctx context.Context, c *transport.Client, accountID, sandboxID int64) error {
	if err := c.Delete(ctx, accountID, join(SandboxHubsPath, itoa(sandboxID))); err != nil {
		return fmt.Errorf("deleting sandbox %d: %w", sandboxID, err)
	}
	return nil
}

// UsageLimit is the sandbox allowance of one type.
type UsageLimit struct {
	Used      int `json:"used"`
	Available int `json:"available"`
	Limit     int `json:"limit"`
}

// SandboxUsageLimits maps sandbox type to its allowance.
type SandboxUsageLimits struct {
	Usage map[string]UsageLimit `json:"usage"`
}

// FetchSandboxUsageLimits returns how many sandboxes parentID may still
// create.
func FetchSandboxUsageLimits(ctx context.Context, c *transport.Client, parentID int64) (*SandboxUsageLimits, error) {
	var out SandboxUsageLimits
	if err := c.Get(ctx, parentID, join(SandboxHubsPath, "parent", itoa(parentID), "usage"), &out); err != nil {
		return nil, fmt.Errorf("fetching sandbox usage limits: %w", err)
	}
	return &out, nil
}
