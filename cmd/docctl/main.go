package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"firedocs/backend/internal/app"
	"firedocs/backend/internal/config"
	"firedocs/backend/internal/docstore"
	"firedocs/backend/internal/httpjson"
	"firedocs/backend/internal/logging"
	"firedocs/backend/internal/store"

	"github.com/urfave/cli/v2"
)

type opener func(ctx context.Context, cfg config.Config) (*app.App, error)

func main() {
	if err := newCLI(os.Stdout, openApp).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openApp(ctx context.Context, cfg config.Config) (*app.App, error) {
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return app.Open(ctx, cfg, logger, nil)
}

func newCLI(out io.Writer, open opener) *cli.App {
	run := func(action func(c *cli.Context, a *app.App) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg := config.Load()
			if path := c.String("config"); path != "" {
				var err error
				if cfg, err = config.LoadFile(path); err != nil {
					return err
				}
			}
			a, err := open(c.Context, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return action(c, a)
		}
	}
	emit := func(v any) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	return &cli.App{
		Name:  "docctl",
		Usage: "inspect and edit documents",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML configuration file", EnvVars: []string{"CONFIG_FILE"}},
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "print one document",
				ArgsUsage: "<collection> <id>",
				Action: run(func(c *cli.Context, a *app.App) error {
					if c.NArg() != 2 {
						return errors.New("usage: get <collection> <id>")
					}
					doc, err := a.Store.Get(c.Context, c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return err
					}
					return emit(doc)
				}),
			},
			{
				Name:      "list",
				Usage:     "print the documents of a collection",
				ArgsUsage: "<collection>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "where", Usage: "filter as field,op,value; value is JSON or a bare string"},
					&cli.StringFlag{Name: "order-by", Usage: "sort by field"},
					&cli.BoolFlag{Name: "desc", Usage: "sort descending"},
				},
				Action: run(func(c *cli.Context, a *app.App) error {
					if c.NArg() != 1 {
						return errors.New("usage: list <collection>")
					}
					collection := c.Args().First()

					var (
						docs []store.Document
						err  error
					)
					switch {
					case c.String("where") != "" && c.String("order-by") != "":
						return errors.New("--where and --order-by cannot be combined")
					case c.String("where") != "":
						field, op, value, perr := parseWhere(c.String("where"))
						if perr != nil {
							return perr
						}
						docs, err = a.Store.ListBy(c.Context, collection, field, op, value)
					case c.String("order-by") != "":
						dir := docstore.Asc
						if c.Bool("desc") {
							dir = docstore.Desc
						}
						docs, err = a.Store.ListOrderBy(c.Context, collection, c.String("order-by"), dir)
					default:
						docs, err = a.Store.List(c.Context, collection)
					}
					if err != nil {
						return err
					}
					return emit(docs)
				}),
			},
			{
				Name:      "insert",
				Usage:     "write a document; an \"id\" key names it",
				ArgsUsage: "<collection> <json>",
				Action: run(func(c *cli.Context, a *app.App) error {
					if c.NArg() != 2 {
						return errors.New("usage: insert <collection> <json>")
					}
					v, err := httpjson.Decode([]byte(c.Args().Get(1)))
					if err != nil {
						return fmt.Errorf("parse document: %w", err)
					}
					doc, ok := v.(map[string]any)
					if !ok {
						return errors.New("document must be a JSON object")
					}
					id, err := a.Store.Insert(c.Context, c.Args().First(), doc)
					if err != nil {
						return err
					}
					return emit(map[string]any{"id": id})
				}),
			},
			{
				Name:      "update-field",
				Usage:     "set one field of an existing document",
				ArgsUsage: "<collection> <id> <field> <value>",
				Action: run(func(c *cli.Context, a *app.App) error {
					if c.NArg() != 4 {
						return errors.New("usage: update-field <collection> <id> <field> <value>")
					}
					args := c.Args()
					if err := a.Store.UpdateField(c.Context, args.Get(0), args.Get(1), args.Get(2), parseValue(args.Get(3))); err != nil {
						return err
					}
					return emit(map[string]any{"ok": true})
				}),
			},
			{
				Name:      "export",
				Usage:     "export a collection to the storage bucket",
				ArgsUsage: "<collection>",
				Action: run(func(c *cli.Context, a *app.App) error {
					if c.NArg() != 1 {
						return errors.New("usage: export <collection>")
					}
					res, err := a.Exporter.Export(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					return emit(res)
				}),
			},
			{
				Name:  "grant-admin",
				Usage: "set the admin custom claim on a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uid", Usage: "target firebase uid", Required: true},
				},
				Action: run(func(c *cli.Context, a *app.App) error {
					authClient := a.Auth()
					if authClient == nil {
						return errors.New("firebase auth is not available")
					}
					uid := c.String("uid")
					claims := map[string]interface{}{
						"admin": true,
						"roles": []string{"admin"},
					}
					if err := authClient.SetCustomUserClaims(c.Context, uid, claims); err != nil {
						return fmt.Errorf("SetCustomUserClaims: %w", err)
					}
					return emit(map[string]any{"ok": true, "uid": uid})
				}),
			},
		},
	}
}

func parseWhere(s string) (string, store.Operator, any, error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 || parts[0] == "" {
		return "", "", nil, fmt.Errorf("invalid --where %q, want field,op,value", s)
	}
	return parts[0], store.Operator(strings.TrimSpace(parts[1])), parseValue(parts[2]), nil
}

// parseValue reads JSON when it can and falls back to the raw string.
func parseValue(s string) any {
	if v, err := httpjson.Decode([]byte(s)); err == nil {
		return v
	}
	return s
}
