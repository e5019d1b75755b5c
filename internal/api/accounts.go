package api

import (
	"context"
	"fmt"

	"github.com/majorcontext/hublink/internal/transport"
)

// AccountDetails describes an account.
type AccountDetails struct {
	PortalID             int64    `json:"portalId"`
	AccountType          string   `json:"accountType"`
	TimeZone             string   `json:"timeZone"`
	CompanyCurrency      string   `json:"companyCurrency"`
	AdditionalCurrencies []string `json:"additionalCurrencies"`
	UTCOffset            string   `json:"utcOffset"`
	UIDomain             string   `json:"uiDomain"`
	DataHostingLocation  string   `json:"dataHostingLocation"`
}

// FetchAccountDetails returns details for accountID.
func FetchAccountDetails(ctx context.Context, c *transport.Client, accountID int64) (*AccountDetails, error) {
	var out AccountDetails
	if err := c.Get(ctx, accountID, AccountInfoPath+"/details", &out); err != nil {
		return nil, fmt.Errorf("fetching account details: %w", err)
	}
	return &out, nil
}
