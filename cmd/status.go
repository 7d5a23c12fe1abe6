package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stablesell/config"
	"stablesell/pkg/client"
	"stablesell/pkg/settlement"
)

var watchStatus bool

var statusCmd = &cobra.Command{
	Use:   "status <settlement-id>",
	Short: "Check the status of a settlement",
	Long: `Check a settlement by id, either once or continuously.

Watch mode fetches the current status first and resumes tracking from there;
it never assumes a settlement is still pending.

Examples:
  stablesell status stl_123
  stablesell status stl_123 --watch`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch until the settlement reaches a terminal state")
}

func runStatus(cmd *cobra.Command, args []string) {
	settlementID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	apiClient := client.New(cfg.APIBaseURL, cfg.APIToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking settlement..."
		s.Start()
	}
	rec, err := apiClient.GetSettlement(ctx, settlementID)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		if watchStatus {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		jsonData, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displaySettlement(rec)

	if !watchStatus {
		return
	}

	// Resume tracking from the freshly fetched status.
	current, ok := settlement.MapRawStatus(rec.Status)
	if !ok {
		current = settlement.StatusPending
	}
	if current.Terminal() {
		return
	}

	trackSettlement(ctx, apiClient, cfg, settlementID, current)
}

func displaySettlement(rec *settlement.Record) {
	st, ok := settlement.MapRawStatus(rec.Status)
	statusText := rec.Status
	if ok {
		statusText = st.String()
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                  SETTLEMENT STATUS")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Settlement ID: %s\n", color.CyanString(rec.ID))
	if ok {
		fmt.Printf("  Status:        %s\n", coloredStatus(st))
	} else {
		fmt.Printf("  Status:        %s\n", statusText)
	}
	fmt.Printf("  Network:       %s\n", rec.Network)
	fmt.Printf("  Token Amount:  %s\n", rec.TokenAmount)
	fmt.Printf("  Fiat Amount:   %s\n", rec.FiatAmount)
	if rec.TransactionHash != "" {
		fmt.Printf("  Tx Hash:       %s\n", color.HiBlackString(rec.TransactionHash))
	}
	fmt.Printf("  Created:       %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if rec.CompletedAt != nil {
		fmt.Printf("  Completed:     %s\n", rec.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
