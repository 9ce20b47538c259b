package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(rc *rootConfig) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every trade record and exit state and restore the opening balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset is irreversible; pass --yes to confirm")
			}
			ctx := cmd.Context()
			s, err := rc.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			states, err := s.stores.Exits.List(ctx)
			if err != nil {
				return fmt.Errorf("list exit states: %w", err)
			}
			for _, st := range states {
				if err := s.exits.Reset(ctx, st.Asset); err != nil {
					return fmt.Errorf("reset exit state %s: %w", st.Asset, err)
				}
			}
			if err := s.ledger.Reset(ctx); err != nil {
				return fmt.Errorf("reset ledger: %w", err)
			}

			bal, err := s.ledger.Balance(ctx)
			if err != nil {
				return fmt.Errorf("balance: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset complete: %d exit states dropped, balance %s\n", len(states), bal)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
