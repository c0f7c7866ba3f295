package main

import (
	"github.com/spf13/cobra"

	"crimesleuth/internal/db"
)

func newMigrateCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if reset {
				a.warn("dropping all tables")
				if err := db.Reset(a.db); err != nil {
					return err
				}
			}
			if err := db.Migrate(a.db); err != nil {
				return err
			}
			a.ok("schema up to date (%s)", a.cfg.DBDriver)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Drop every table before migrating")
	return cmd
}
