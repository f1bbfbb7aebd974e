package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/docrelay/docrelay-go/internal/cli/output"
)

// documentView mirrors the server's document response body.
type documentView struct {
	ID         string         `json:"id"`
	Heads      []string       `json:"heads"`
	HistoryLen uint64         `json:"history_len"`
	Content    map[string]any `json:"content,omitempty"`
}

type documentList struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

type patchView struct {
	DocumentID string   `json:"document_id"`
	Before     uint64   `json:"before"`
	After      uint64   `json:"after"`
	Heads      []string `json:"heads"`
	Changed    bool     `json:"changed"`
}

type storeSyncView struct {
	Merged int `json:"merged"`
	Failed int `json:"failed"`
}

// DocumentCommand returns the doc subcommand group.
func DocumentCommand() *cli.Command {
	return &cli.Command{
		Name:    "doc",
		Aliases: []string{"document"},
		Usage:   "Document management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List document IDs",
				Action: docList,
			},
			{
				Name:      "get",
				Usage:     "Show a document and its content",
				ArgsUsage: "DOC_ID",
				Action:    docGet,
			},
			{
				Name:      "create",
				Usage:     "Create a document, optionally with initial fields",
				ArgsUsage: "DOC_ID [KEY=VALUE...]",
				Action:    docCreate,
			},
			{
				Name:      "set",
				Usage:     "Set fields on a document",
				ArgsUsage: "DOC_ID KEY=VALUE [KEY=VALUE...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "message",
						Aliases: []string{"m"},
						Usage:   "Change message recorded in document history",
					},
				},
				Action: docSet,
			},
			{
				Name:      "delete",
				Usage:     "Delete a document",
				ArgsUsage: "DOC_ID",
				Action:    docDelete,
			},
			{
				Name:   "sync",
				Usage:  "Reconcile in-memory documents against the snapshot store",
				Action: docSyncStore,
			},
		},
	}
}

func docList(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var list documentList
	if err := client.Get(ctx, "/v1/documents", &list); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, list)
	}

	table := &output.Table{}
	table.SetHeaders("ID")
	for _, id := range list.IDs {
		table.AddRow(id)
	}
	if err := table.Render(c.App.Writer); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\n%d document(s)\n", list.Total)
	return nil
}

func docGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: doc get DOC_ID")
	}
	id := c.Args().First()

	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var doc documentView
	if err := client.Get(ctx, "/v1/documents/"+url.PathEscape(id), &doc); err != nil {
		return err
	}
	return formatter(c).Format(c.App.Writer, doc)
}

func docCreate(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: doc create DOC_ID [KEY=VALUE...]")
	}
	id := c.Args().First()

	initial, err := parseFields(c.Args().Tail())
	if err != nil {
		return err
	}

	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var doc documentView
	body := map[string]any{"initial": initial}
	if err := client.Put(ctx, "/v1/documents/"+url.PathEscape(id), body, &doc); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "created document %s\n", doc.ID)
	return nil
}

func docSet(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: doc set DOC_ID KEY=VALUE [KEY=VALUE...]")
	}
	id := c.Args().First()

	fields, err := parseFields(c.Args().Tail())
	if err != nil {
		return err
	}

	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var patch patchView
	body := map[string]any{
		"set":     fields,
		"message": c.String("message"),
	}
	if err := client.Post(ctx, "/v1/documents/"+url.PathEscape(id), body, &patch); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, patch)
	}
	fmt.Fprintf(c.App.Writer, "updated %s: history %d -> %d\n", patch.DocumentID, patch.Before, patch.After)
	return nil
}

func docDelete(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: doc delete DOC_ID")
	}
	id := c.Args().First()

	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	if err := client.Delete(ctx, "/v1/documents/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted document %s\n", id)
	return nil
}

func docSyncStore(c *cli.Context) error {
	client := apiClient(c)
	ctx, cancel := requestContext()
	defer cancel()

	var result storeSyncView
	if err := client.Post(ctx, "/v1/sync/store", nil, &result); err != nil {
		return err
	}

	if output.Format(c.String("output")) != output.FormatTable {
		return formatter(c).Format(c.App.Writer, result)
	}
	fmt.Fprintf(c.App.Writer, "merged %d document(s), %d failed\n", result.Merged, result.Failed)
	return nil
}

// parseFields turns KEY=VALUE arguments into a field map. Values that
// parse as JSON scalars keep their type; everything else is a string.
func parseFields(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want KEY=VALUE", arg)
		}
		fields[key] = parseScalar(value)
	}
	return fields, nil
}

func parseScalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case map[string]any, []any:
			return v
		}
	}
	return s
}
