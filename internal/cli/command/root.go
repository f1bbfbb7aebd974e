package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/docrelay/docrelay-go/internal/cli/connection"
	"github.com/docrelay/docrelay-go/internal/cli/output"
	"github.com/docrelay/docrelay-go/internal/infra/buildinfo"
	"github.com/docrelay/docrelay-go/internal/server/config"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "docrelayctl",
		Usage:   "DocRelay command-line management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			DocumentCommand(),
			RouteCommand(),
			BackupCommand(),
			SystemCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "DocRelay server address (e.g., localhost:7421)",
			EnvVars: []string{"DOCRELAY_SERVER"},
			Value:   "localhost:7421",
		},
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "Bearer token for API authentication",
			EnvVars: []string{"DOCRELAY_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "socket",
			Usage:   "Path to the local management socket",
			EnvVars: []string{"DOCRELAY_SOCKET"},
			Value:   config.DefaultLocalSocket,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
	}
}

// apiClient builds an HTTP API client from the global flags.
func apiClient(c *cli.Context) *connection.APIClient {
	return connection.NewAPIClient(c.String("server"), c.String("token"))
}

// socketClient builds a management socket client from the global flags.
func socketClient(c *cli.Context) *connection.SocketClient {
	return connection.NewSocketClient(c.String("socket"))
}

// formatter builds an output formatter from the global flags.
func formatter(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(c.String("output")))
}

// requestContext returns a bounded context for one API call.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
