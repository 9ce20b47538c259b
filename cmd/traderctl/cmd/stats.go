package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"solana-trader/internal/ledger"
	"solana-trader/internal/metrics"
	"solana-trader/internal/position"
	"solana-trader/internal/sizing"
)

// statsReport is the output of the stats command.
type statsReport struct {
	Balance       string              `json:"balance"`
	Records       int                 `json:"records"`
	OpenPositions int                 `json:"open_positions"`
	Performance   metrics.Performance `json:"performance"`
	Kelly         *float64            `json:"kelly,omitempty"`
}

func newStatsCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize balance, realized P&L and win statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rc.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			bal, err := s.ledger.Balance(ctx)
			if err != nil {
				return fmt.Errorf("balance: %w", err)
			}
			records, err := s.ledger.History(ctx, ledger.HistoryFilter{})
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			rep := statsReport{
				Balance:       bal.String(),
				Records:       len(records),
				OpenPositions: len(position.Derive(records)),
				Performance:   metrics.Compute(records),
				Kelly:         sizing.KellyFromHistory(records, s.cfg.Sizing.KellyMinTrades),
			}

			out := cmd.OutOrStdout()
			if rc.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			fmt.Fprintf(out, "Balance:         %s\n", rep.Balance)
			fmt.Fprintf(out, "Records:         %d\n", rep.Records)
			fmt.Fprintf(out, "Open positions:  %d\n", rep.OpenPositions)
			perf := rep.Performance
			fmt.Fprintf(out, "Realized P&L:    %s (max drawdown %s)\n", perf.RealizedTotal, perf.MaxDrawdown)
			fmt.Fprintf(out, "Sells:           %d (%d wins, %.1f%%)\n", perf.Sells, perf.Wins, perf.WinRate*100)
			fmt.Fprintf(out, "Assets:          %d (%.1f%% net winners)\n", perf.Assets, perf.AssetWinRate*100)
			fmt.Fprintf(out, "Outcome:         mean %.2f%%, median %.2f%%, p10 %.2f%%, p90 %.2f%%\n",
				perf.OutcomeMean*100, perf.OutcomeMedian*100, perf.OutcomeP10*100, perf.OutcomeP90*100)
			fmt.Fprintf(out, "Loss streak:     %d\n", perf.MaxConsecutiveLosses)
			if rep.Kelly != nil {
				fmt.Fprintf(out, "Kelly fraction:  %.4f\n", *rep.Kelly)
			} else {
				fmt.Fprintf(out, "Kelly fraction:  n/a (fewer than %d sells)\n", s.cfg.Sizing.KellyMinTrades)
			}
			return nil
		},
	}
}
