// Package cli provides helpers shared by hublink commands: display
// formatting, interactive prompts and table/JSON output.
//
// This package MUST NOT import cmd/hublink/cli. Commands depend on it, not
// the other way around.
package cli
