package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"crimesleuth/internal/config"
	"crimesleuth/internal/db"
	"crimesleuth/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	driver  string
	dsn     string
	verbose bool
}

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "admin",
		Short:         "CrimeSleuth operator tasks",
		Long:          "Operator tasks for the CrimeSleuth API: schema migration,\nuser provisioning and evidence counter repair.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.Version = version

	pf := root.PersistentFlags()
	pf.StringVar(&flags.driver, "db-driver", "", "Database driver (mysql, postgres, sqlite); defaults to config")
	pf.StringVar(&flags.dsn, "dsn", "", "Database DSN; defaults to config")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log SQL warnings and debug output")

	open := func(cmd *cobra.Command) (*app, error) {
		return openApp(cmd, flags)
	}
	root.AddCommand(newMigrateCmd(open))
	root.AddCommand(newCreateUserCmd(open))
	root.AddCommand(newSetRoleCmd(open))
	root.AddCommand(newRecountCmd(open))
	return root
}

func openApp(cmd *cobra.Command, flags rootFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.driver != "" {
		cfg.DBDriver = flags.driver
	}
	if flags.dsn != "" {
		cfg.DatabaseDSN = flags.dsn
	}

	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	logger := logging.New(level, "text", cmd.ErrOrStderr())

	var dbLogger *slog.Logger
	if flags.verbose {
		dbLogger = logger
	}
	gdb, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, dbLogger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, db: gdb, logger: logger, out: cmd.OutOrStdout()}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) ok(format string, args ...any) {
	color.New(color.FgGreen).Fprint(a.out, "ok ")
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *app) warn(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(a.out, "! "+format+"\n", args...)
}
