package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"solana-trader/internal/app"
	"solana-trader/internal/position"
)

func newPositionsCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show open positions and their exit progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rc.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			open, err := position.NewAccessor(s.ledger).OpenPositions(ctx)
			if err != nil {
				return fmt.Errorf("open positions: %w", err)
			}

			views := make([]app.PositionView, 0, len(open))
			for _, p := range open {
				summary, err := s.exits.Summary(ctx, p.Asset)
				if err != nil {
					return fmt.Errorf("exit summary %s: %w", p.Asset, err)
				}
				views = append(views, app.PositionView{
					Asset:         p.Asset,
					Quantity:      p.Quantity.String(),
					AvgEntryPrice: p.AvgEntryPrice.String(),
					OpenedAt:      time.UnixMilli(p.OpenedAt).UTC(),
					Exit:          summary,
				})
			}
			if rc.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no open positions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tQUANTITY\tAVG ENTRY\tOPENED\tSTAGE\tREMAINING LEVELS\tTRAILING")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\t%t\n",
					v.Asset, v.Quantity, v.AvgEntryPrice, v.OpenedAt.Format("2006-01-02 15:04"),
					v.Exit.Stage, v.Exit.RemainingLevels, v.Exit.TrailingArmed)
			}
			return w.Flush()
		},
	}
}
