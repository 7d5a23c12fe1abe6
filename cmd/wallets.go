package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stablesell/config"
	"stablesell/pkg/client"
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "List wallets available for selling",
	Long: `List the wallets registered for your account, with their network and
cached balance. Use a wallet's id with the sell command.`,
	Run: runWallets,
}

func init() {
	rootCmd.AddCommand(walletsCmd)
}

func runWallets(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := client.New(cfg.APIBaseURL, cfg.APIToken)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Loading wallets..."
		s.Start()
	}
	wallets, err := apiClient.ListWallets(context.Background())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(wallets, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(wallets) == 0 {
		fmt.Println("\nNo wallets registered.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           WALLETS")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println()

	for _, w := range wallets {
		fmt.Printf("  %s  %s\n", color.CyanString(w.ID), w.Label)
		fmt.Printf("      Network: %-8s Balance: %s\n", w.Network, color.YellowString(w.Balance))
		fmt.Printf("      Address: %s\n\n", color.HiBlackString(w.Address))
	}

	fmt.Println(strings.Repeat("=", 70) + "\n")
}
