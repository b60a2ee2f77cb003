package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/napari-cellpose/paramctl/internal/conf"
	"github.com/napari-cellpose/paramctl/internal/l10n"
)

var errUsage = errors.New("invalid arguments")

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.T("error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "paramctl",
		Usage: l10n.T("inspect and edit layered training configuration files"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   ".",
				Usage:   l10n.T("configuration file, or the directory holding it"),
				EnvVars: []string{"PARAMCTL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "name",
				Value:   conf.DefaultConfigName,
				Usage:   l10n.T("file name used when --config is a directory"),
				EnvVars: []string{"PARAMCTL_CONFIG_NAME"},
			},
			&cli.StringSliceFlag{
				Name:    "inherit",
				Aliases: []string{"i"},
				Usage:   l10n.T("configuration merged on top, later ones win (repeatable)"),
			},
			&cli.StringFlag{
				Name:    "drop-in-dir",
				Usage:   l10n.T("directory of drop-in files merged last"),
				EnvVars: []string{"PARAMCTL_DROP_IN_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   l10n.T("log level (debug, info, warn, error)"),
				EnvVars: []string{"PARAMCTL_LOG_LEVEL"},
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  l10n.T("print the merged configuration"),
				Action: showAction,
			},
			{
				Name:      "get",
				Usage:     l10n.T("print the value at KEY"),
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "default",
						Usage: l10n.T("value printed when KEY is missing"),
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: l10n.T("fail when KEY is missing"),
					},
				},
				Action: getAction,
			},
			{
				Name:      "set",
				Usage:     l10n.T("set KEY to a YAML VALUE and save"),
				ArgsUsage: "KEY VALUE",
				Action:    setAction,
			},
			{
				Name:      "merge",
				Usage:     l10n.T("merge configuration files on top and save"),
				ArgsUsage: "LOCATION...",
				Action:    mergeAction,
			},
			{
				Name:  "stamp",
				Usage: l10n.T("record the current git revision and save"),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: l10n.T("replace an existing revision"),
					},
				},
				Action: stampAction,
			},
			{
				Name:  "dump",
				Usage: l10n.T("save the merged configuration"),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Usage: l10n.T("write to this location instead"),
					},
				},
				Action: dumpAction,
			},
		},
	}
}

func setupLogging(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	handler := slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

func openStore(c *cli.Context) (*conf.Store, error) {
	cs := &conf.ConfigSource{
		Path:       c.String("config"),
		ConfigName: c.String("name"),
		Inherited:  c.StringSlice("inherit"),
		DropInDir:  c.String("drop-in-dir"),
	}
	return cs.Open()
}

func printValue(c *cli.Context, v any) error {
	data, err := conf.EncodeYAML(conf.ValueOf(v))
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func showAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	return printValue(c, store.Value())
}

func getAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("expected KEY"))
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}

	key := c.Args().First()
	if c.Bool("strict") {
		v, err := store.Lookup(key)
		if err != nil {
			return err
		}
		return printValue(c, v)
	}

	var def any
	if c.IsSet("default") {
		parsed, err := conf.DecodeYAMLValue([]byte(c.String("default")))
		if err != nil {
			return err
		}
		def = parsed
	}
	return printValue(c, store.Get(key, def))
}

func setAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("expected KEY and VALUE"))
	}
	value, err := conf.DecodeYAMLValue([]byte(c.Args().Get(1)))
	if err != nil {
		return err
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	_, err = store.Set(c.Args().First(), value).Persist()
	return err
}

func mergeAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: %s", errUsage, l10n.T("expected at least one LOCATION"))
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	for _, location := range c.Args().Slice() {
		if err := store.MergeFrom(location); err != nil {
			return err
		}
	}
	if _, err := store.Persist(); err != nil {
		return err
	}
	n := uint32(c.NArg())
	fmt.Fprintln(c.App.Writer, l10n.TN("merged %d file into %s", "merged %d files into %s", n, n, store.Path()))
	return nil
}

func stampAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	if _, err := store.StampRevision(c.Bool("overwrite")).Persist(); err != nil {
		return err
	}
	return printValue(c, store.Get(conf.RevisionField, nil))
}

func dumpAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	if to := c.String("to"); to != "" {
		_, err = store.PersistTo(to)
	} else {
		_, err = store.Persist()
	}
	return err
}
