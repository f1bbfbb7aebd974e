package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/docrelay/docrelay-go/internal/cli/output"
)

type backupStatusView struct {
	Enabled    bool `json:"enabled"`
	DirtyCount int  `json:"dirty_count"`
}

type backupFlushView struct {
	Flushed bool     `json:"flushed"`
	Failed  []string `json:"failed,omitempty"`
}

type backupRemoteView struct {
	IDs []string `json:"ids"`
}

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Remote backup commands",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show backup adapter status",
				Action: backupStatus,
			},
			{
				Name:   "flush",
				Usage:  "Push pending document changes to the remote store",
				Action: backupFlush,
			},
			{
				Name:   "remote",
				Usage:  "List document IDs present on the remote store",
				Action: backupRemote,
			},
		},
	}
}

func backupStatus(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var status backupStatusView
	if err := client.Get(ctx, "/v1/backup/status", &status); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, status)
	}
	if !status.Enabled {
		fmt.Fprintln(c.App.Writer, "backup is disabled")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "backup enabled, %d document(s) pending\n", status.DirtyCount)
	return nil
}

func backupFlush(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var result backupFlushView
	if err := client.Post(ctx, "/v1/backup/flush", nil, &result); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, result)
	}
	fmt.Fprintln(c.App.Writer, "flush completed")
	return nil
}

func backupRemote(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var remote backupRemoteView
	if err := client.Get(ctx, "/v1/backup/remote", &remote); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, remote)
	}

	table := &output.Table{}
	table.SetHeaders("REMOTE ID")
	for _, id := range remote.IDs {
		table.AddRow(id)
	}
	if err := table.Render(c.App.Writer); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\n%d object(s)\n", len(remote.IDs))
	return nil
}
