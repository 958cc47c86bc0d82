// judgectl is the operator's command line tool for the judge.
package main

import (
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog/sklogimpl"
	"github.com/easyctf/openctf-judge/go/sklog/stdlogging"
	"github.com/easyctf/openctf-judge/go/urfavecli"
	"github.com/easyctf/openctf-judge/judge/go/auth"
	"github.com/easyctf/openctf-judge/judge/go/db/sqldb"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

// flag names
const (
	nameFlagName   = "name"
	juryFlagName   = "jury"
	readerFlagName = "reader"
	masterFlagName = "master"
)

func main() {
	app := &cli.App{
		Name:  "judgectl",
		Usage: "Operator tools for the judge.",
		Before: func(c *cli.Context) error {
			// Log to stderr so command output stays pipeable.
			sklogimpl.SetLogger(stdlogging.New(os.Stderr))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "api-key",
				Usage: "Manage API keys.",
				Subcommands: []*cli.Command{
					{
						Name:        "generate",
						Usage:       "judgectl api-key generate --name <name> [--jury] [--reader] [--master]",
						Description: "Mints a new API key and prints it. The database is taken from DATABASE_URI.",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  nameFlagName,
								Usage: "Human-readable label for the key.",
							},
							&cli.BoolFlag{
								Name:  juryFlagName,
								Usage: "Grant the jury capability (claim and grade jobs).",
							},
							&cli.BoolFlag{
								Name:  readerFlagName,
								Usage: "Grant the reader capability (read and create submissions).",
							},
							&cli.BoolFlag{
								Name:  masterFlagName,
								Usage: "Grant the master capability (issue keys over the API).",
							},
						},
						Action: generateAPIKey,
					},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %s\n", err)
		os.Exit(2)
	}
}

func generateAPIKey(c *cli.Context) error {
	urfavecli.LogFlags(c)
	name := c.String(nameFlagName)
	if name == "" {
		return skerr.Fmt("--name is required")
	}
	if len(name) > types.MaxAPIKeyNameLength {
		return skerr.Fmt("--name must be at most %d characters", types.MaxAPIKeyNameLength)
	}
	uri := os.Getenv("DATABASE_URI")
	if uri == "" {
		return skerr.Fmt("DATABASE_URI is not set")
	}
	pool, err := pgxpool.Connect(c.Context, uri)
	if err != nil {
		return skerr.Wrapf(err, "connecting to the database")
	}
	defer pool.Close()
	d, err := sqldb.New(c.Context, pool)
	if err != nil {
		return skerr.Wrap(err)
	}
	key, err := auth.GenerateKey()
	if err != nil {
		return skerr.Wrap(err)
	}
	if err := d.PutAPIKey(c.Context, &types.APIKey{
		Key:    key,
		Name:   name,
		Active: true,
		Jury:   c.Bool(juryFlagName),
		Reader: c.Bool(readerFlagName),
		Master: c.Bool(masterFlagName),
	}); err != nil {
		return skerr.Wrap(err)
	}
	fmt.Println(key)
	return nil
}
