package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stablesell/config"
	"stablesell/pkg/chain"
	"stablesell/pkg/client"
	"stablesell/pkg/keymat"
	"stablesell/pkg/sell"
	"stablesell/pkg/settlement"
)

var (
	sellWalletID string
	sellYes      bool
)

var sellCmd = &cobra.Command{
	Use:   "sell <amount>",
	Short: "Sell a stablecoin balance",
	Long: `Sell a token amount from one of your registered wallets.

The flow fetches a quote, asks for confirmation, prompts for the wallet's
private key (input is hidden and never stored), signs and broadcasts the
transfer locally, then tracks the settlement until it completes or fails.

Accepted key formats: byte-array literal, hex (0x prefix optional), base58.

Examples:
  stablesell sell 100 --wallet wlt_123
  stablesell sell 25.5 --wallet wlt_456 --yes`,
	Args: cobra.ExactArgs(1),
	Run:  runSell,
}

func init() {
	rootCmd.AddCommand(sellCmd)

	sellCmd.Flags().StringVar(&sellWalletID, "wallet", "", "Wallet id to sell from (REQUIRED, see `stablesell wallets`)")
	sellCmd.Flags().BoolVarP(&sellYes, "yes", "y", false, "Skip the quote confirmation prompt")
	_ = sellCmd.MarkFlagRequired("wallet")
}

func runSell(cmd *cobra.Command, args []string) {
	amount := args[0]

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	apiClient := client.New(cfg.APIBaseURL, cfg.APIToken)
	registry, err := buildRegistry(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Resolve the wallet from the registry.
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Loading wallets..."
	s.Start()
	wallets, err := apiClient.ListWallets(ctx)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var wallet *settlement.WalletRef
	for i := range wallets {
		if wallets[i].ID == sellWalletID {
			wallet = &wallets[i]
			break
		}
	}
	if wallet == nil {
		printError(fmt.Errorf("wallet %q not found; run `stablesell wallets` to list ids", sellWalletID))
		os.Exit(1)
	}

	orch := sell.New(apiClient, registry,
		sell.WithMinSellAmount(cfg.MinSellAmount),
		sell.WithLogger(newLogger(cfg)),
	)

	s.Suffix = " Fetching quote..."
	s.Start()
	attempt, err := orch.Prepare(ctx, *wallet, amount)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	displayQuote(attempt)

	if !sellYes && !confirmSell() {
		fmt.Println("\nSell cancelled.")
		os.Exit(0)
	}

	secretInput, err := promptPrivateKey()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s.Suffix = " Signing..."
	s.Start()
	outcome, err := attempt.Confirm(ctx, secretInput, func(step string) {
		s.Suffix = " " + step + "..."
	})
	s.Stop()
	secretInput = ""

	if err != nil {
		reportSellError(err, outcome)
		os.Exit(1)
	}

	color.Green("\n✓ Transaction broadcast")
	fmt.Printf("  Tx Hash:       %s\n", color.CyanString(outcome.TxHash))
	fmt.Printf("  Settlement ID: %s\n\n", color.CyanString(outcome.SettlementID))

	trackSettlement(ctx, apiClient, cfg, outcome.SettlementID, outcome.InitialStatus)
}

// trackSettlement polls the settlement to a terminal state, rendering each
// canonical status advance. Ctrl-C stops tracking only; the broadcast
// transfer is irrevocable and keeps settling server-side.
func trackSettlement(ctx context.Context, apiClient *client.Client, cfg *config.Config, id string, initial settlement.Status) {
	tracker := settlement.NewTracker(apiClient,
		settlement.WithInterval(cfg.PollInterval),
		settlement.WithLogger(newLogger(cfg)),
	)

	fmt.Printf("Tracking settlement %s (Ctrl+C stops tracking, not the settlement)\n\n", color.CyanString(id))
	fmt.Printf("  Status: %s\n", coloredStatus(initial))

	var completed, failed *settlement.Record
	watch := tracker.Track(ctx, id, initial, settlement.Callbacks{
		OnStatus: func(st settlement.Status, rec *settlement.Record) {
			fmt.Printf("  Status: %s\n", coloredStatus(st))
		},
		OnCompleted: func(rec *settlement.Record) { completed = rec },
		OnFailed:    func(rec *settlement.Record) { failed = rec },
	})

	<-watch.Done()

	switch {
	case completed != nil:
		color.Green("\n✓ Settlement completed")
		fmt.Printf("  Received: %s\n\n", completed.FiatAmount)
	case failed != nil:
		color.Red("\n✗ Settlement failed")
		if failed.TransactionHash != "" {
			fmt.Printf("  Tx Hash: %s (check on-chain for details)\n", failed.TransactionHash)
		}
		fmt.Println()
	case ctx.Err() != nil:
		fmt.Printf("\nStopped tracking. The transfer is already on-chain; check progress later with:\n")
		color.Cyan("  stablesell status %s --watch\n\n", id)
	}
}

// reportSellError renders a signing/broadcast failure with the affordance
// each error class allows. Only a transient network failure is safe to
// retry; a rejected or already-broadcast transaction is not.
func reportSellError(err error, outcome *sell.Outcome) {
	switch {
	case errors.Is(err, keymat.ErrInvalidKeyEncoding):
		color.Red("\n✗ %v", err)
		fmt.Println("  Check the key and run the command again.")
	case errors.Is(err, chain.ErrKeyAddressMismatch):
		color.Red("\n✗ %v", err)
		fmt.Println("  The key belongs to a different address than the selected wallet.")
	case errors.Is(err, chain.ErrInsufficientFundsForFee):
		color.Red("\n✗ %v", err)
		fmt.Println("  Top up the wallet's native coin balance to cover the network fee.")
	case errors.Is(err, chain.ErrNetworkUnavailable):
		color.Red("\n✗ %v", err)
		fmt.Println("  The network did not respond; it is safe to run the command again.")
	default:
		color.Red("\n✗ %v", err)
	}
	if outcome != nil && outcome.TxHash != "" {
		fmt.Printf("  Tx Hash: %s (the transfer itself was broadcast)\n", outcome.TxHash)
	}
	fmt.Println()
}

func displayQuote(attempt *sell.Attempt) {
	q := attempt.Plan.Quote

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SELL QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Wallet:        %s (%s)\n", attempt.Wallet.Label, attempt.Wallet.ID)
	fmt.Printf("  Network:       %s\n", attempt.Wallet.Network)
	fmt.Printf("  Selling:       %s tokens\n", color.YellowString(attempt.Amount))
	fmt.Printf("  You receive:   %s\n", color.YellowString(q.FiatToReceive))
	fmt.Printf("  Rate:          %s\n", q.ExchangeRate)
	fmt.Printf("  Spread:        %s%%\n", q.SpreadPercent)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSell() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Proceed with sell? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// promptPrivateKey reads the key without echoing it.
func promptPrivateKey() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("stdin is not a terminal: run interactively to enter the private key")
	}
	fmt.Fprint(os.Stderr, "Enter the wallet's private key (hidden): ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("no key entered")
	}
	return string(raw), nil
}

func coloredStatus(st settlement.Status) string {
	switch st {
	case settlement.StatusCompleted:
		return color.GreenString(st.String())
	case settlement.StatusFailed:
		return color.RedString(st.String())
	default:
		return color.YellowString(st.String())
	}
}
