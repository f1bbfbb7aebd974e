// Package command provides CLI command definitions for docrelayctl.
//
// It uses urfave/cli/v2 for command parsing. Commands talk to the HTTP
// API; the system group additionally reaches the local management
// socket for operations that bypass token auth.
package command
