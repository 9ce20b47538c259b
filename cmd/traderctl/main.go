package main

import (
	"os"

	"solana-trader/cmd/traderctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
