// Package api wraps the platform REST endpoints the CLI uses. Each
// function issues one request through a transport.Client and returns the
// decoded response.
package api

import (
	"net/url"
	"strconv"
)

// Endpoint roots.
const (
	LocalDevAuthPath = "localdevauth/v1/auth"
	AccountInfoPath  = "account-info/v3"
	SecretsPath      = "cms/v3/functions/secrets"
	ProjectsPath     = "project-components-external/v3/projects"
	SandboxHubsPath  = "sandbox-hubs/v1"
)

func join(root string, parts ...string) string {
	p := root
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
