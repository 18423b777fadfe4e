// arbminer discovers marketplace products, estimates their demand from
// sales-rank data, and cross-matches them against a second marketplace
// to surface arbitrage candidates.
package main

import (
	"fmt"
	"os"

	"github.com/arbminer/arbminer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
