package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"solana-trader/internal/app"
	"solana-trader/internal/ledger"
)

func newHistoryCmd(rc *rootConfig) *cobra.Command {
	var (
		asset string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List trade records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			records, err := s.ledger.History(cmd.Context(), ledger.HistoryFilter{Asset: asset, Limit: limit})
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			views := make([]app.TradeView, 0, len(records))
			for _, r := range records {
				views = append(views, app.NewTradeView(r))
			}
			if rc.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tASSET\tSIDE\tAMOUNT\tPRICE\tGAIN\tTX")
			for _, v := range views {
				gain := "-"
				if v.Gain != nil {
					gain = v.Gain.String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					v.ID, v.Timestamp.Format("2006-01-02 15:04:05"), v.Asset, v.Side, v.Amount, v.Price, gain, v.TxRef)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&asset, "asset", "a", "", "only records for this mint")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records (0 for all)")
	return cmd
}
