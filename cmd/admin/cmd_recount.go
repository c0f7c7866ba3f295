package main

import (
	"github.com/spf13/cobra"

	"crimesleuth/internal/repository"
)

func newRecountCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "recount-evidence",
		Short: "Recompute every case's evidence count from the evidence table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			fixed, err := repository.NewCaseRepository(a.db).RecountEvidence(cmd.Context())
			if err != nil {
				return err
			}
			if fixed > 0 {
				a.warn("corrected evidence_count on %d case(s)", fixed)
				return nil
			}
			a.ok("all evidence counts consistent")
			return nil
		},
	}
}
