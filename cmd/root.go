package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stablesell",
	Short: "Sell a stablecoin balance and track its settlement",
	Long: `stablesell signs a stablecoin transfer locally with a key you supply,
broadcasts it, and tracks the resulting settlement until it completes.
The private key never leaves this machine; only the signed transaction
and its hash are sent out.

Examples:
  stablesell wallets
  stablesell sell 100 --wallet wlt_123
  stablesell status stl_456 --watch`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
