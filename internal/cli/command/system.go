package command

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/docrelay/docrelay-go/internal/cli/output"
)

type systemStatusView struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Documents     int    `json:"documents"`
	Routes        int    `json:"routes"`
	BackupEnabled bool   `json:"backup_enabled"`
	BackupDirty   int    `json:"backup_dirty"`
}

// SystemCommand returns the system subcommand group. These commands use
// the local management socket and require no API token.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Local system management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status summary",
				Action: systemStatus,
			},
			{
				Name:   "ping",
				Usage:  "Check that the local server answers",
				Action: systemPing,
			},
			{
				Name:   "health",
				Usage:  "Check server health over HTTP",
				Action: systemHealth,
			},
		},
	}
}

func systemStatus(c *cli.Context) error {
	client := socketClient(c)
	defer client.Close()

	res, err := client.Execute("status")
	if err != nil {
		return err
	}

	var status systemStatusView
	if err := json.Unmarshal(res.Data, &status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, status)
	}

	fmt.Fprintf(c.App.Writer, "Version:   %s\n", status.Version)
	fmt.Fprintf(c.App.Writer, "Uptime:    %ds\n", status.UptimeSeconds)
	fmt.Fprintf(c.App.Writer, "Documents: %d\n", status.Documents)
	fmt.Fprintf(c.App.Writer, "Routes:    %d\n", status.Routes)
	if status.BackupEnabled {
		fmt.Fprintf(c.App.Writer, "Backup:    enabled (%d pending)\n", status.BackupDirty)
	} else {
		fmt.Fprintln(c.App.Writer, "Backup:    disabled")
	}
	return nil
}

func systemPing(c *cli.Context) error {
	client := socketClient(c)
	defer client.Close()

	if _, err := client.Execute("ping"); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "pong")
	return nil
}

func systemHealth(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	if err := client.Get(ctx, "/health", nil); err != nil {
		PrintError("health check failed: %v", err)
		return fmt.Errorf("server unhealthy")
	}
	fmt.Fprintf(c.App.Writer, "server at %s is healthy\n", client.BaseURL())
	return nil
}
