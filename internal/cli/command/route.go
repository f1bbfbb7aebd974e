package command

import (
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/docrelay/docrelay-go/internal/cli/output"
)

// routeView mirrors the server's route response body.
type routeView struct {
	ID         string    `json:"id"`
	BundleName string    `json:"bundle_name"`
	BundlePath string    `json:"bundle_path"`
	Route      string    `json:"route"`
	StartTime  time.Time `json:"start_time"`
	IsRunning  bool      `json:"is_running"`
}

type routeList struct {
	Routes []routeView `json:"routes"`
	Total  int         `json:"total"`
}

// RouteCommand returns the route subcommand group.
func RouteCommand() *cli.Command {
	return &cli.Command{
		Name:  "route",
		Usage: "Route registry commands",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered routes",
				Action: routeListAction,
			},
			{
				Name:      "register",
				Usage:     "Register a route for a bundle (flags go before the route)",
				ArgsUsage: "ROUTE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "bundle-name",
						Usage:    "Display name of the bundle",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "bundle-path",
						Usage:    "Path to the bundle on the server",
						Required: true,
					},
				},
				Action: routeRegister,
			},
			{
				Name:      "unregister",
				Usage:     "Remove a route",
				ArgsUsage: "ROUTE_ID",
				Action:    routeUnregister,
			},
			{
				Name:      "enable",
				Usage:     "Mark a route as running",
				ArgsUsage: "ROUTE_ID",
				Action:    routeSetRunning(true),
			},
			{
				Name:      "disable",
				Usage:     "Mark a route as stopped",
				ArgsUsage: "ROUTE_ID",
				Action:    routeSetRunning(false),
			},
		},
	}
}

func routeListAction(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var list routeList
	if err := client.Get(ctx, "/v1/routes", &list); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, list)
	}

	table := &output.Table{}
	table.SetHeaders("ID", "ROUTE", "BUNDLE", "RUNNING", "STARTED")
	for _, r := range list.Routes {
		started := "-"
		if !r.StartTime.IsZero() {
			started = r.StartTime.Format("2006-01-02 15:04")
		}
		table.AddRow(r.ID, r.Route, r.BundleName, fmt.Sprintf("%t", r.IsRunning), started)
	}
	return table.Render(c.App.Writer)
}

func routeRegister(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: route register --bundle-name NAME --bundle-path PATH ROUTE")
	}

	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	body := map[string]any{
		"route":       c.Args().First(),
		"bundle_name": c.String("bundle-name"),
		"bundle_path": c.String("bundle-path"),
	}
	var route routeView
	if err := client.Post(ctx, "/v1/routes", body, &route); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "registered route %s (%s)\n", route.Route, route.ID)
	return nil
}

func routeUnregister(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: route unregister ROUTE_ID")
	}
	id := c.Args().First()

	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	if err := client.Delete(ctx, "/v1/routes/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "unregistered route %s\n", id)
	return nil
}

func routeSetRunning(running bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("usage: route enable|disable ROUTE_ID")
		}
		id := c.Args().First()

		client := apiClient(c)
		ctx, cancel := requestContext()
		defer cancel()

		body := map[string]any{"running": running}
		var route routeView
		if err := client.Post(ctx, "/v1/routes/"+url.PathEscape(id)+"/status", body, &route); err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "route %s running=%t\n", route.ID, route.IsRunning)
		return nil
	}
}
