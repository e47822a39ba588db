package main

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/malbeclabs/biox/indexer/pkg/notify"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/sdk/go/biox"
)

func init() {
	rootCmd.AddCommand(
		initCmd(),
		submitCmd(),
		paperIDCmd("publish", "Publish a draft paper (author only)", publish),
		fundCmd(),
		voteCmd(),
		paperIDCmd("claim", "Claim the escrow of a fully funded paper (author only)", claim),
		pauseCmd(),
		settingsCmd(),
		createTokenAccountCmd(),
		mintCmd(),
	)
}

func printReceipt(cmd *cobra.Command, receipt *runtime.Receipt) error {
	if viper.GetBool("json") {
		return printJSON(cmd, receipt)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Signature: %s\nSlot:      %d\n", receipt.Signature, receipt.Slot)
	for _, ev := range receipt.Events {
		fmt.Fprintf(out, "Event:     %s\n", ev.EventName())
	}
	return nil
}

// signed runs fn with the configured keypair and prints the receipt it returns.
func signed(fn func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, args []string) (*runtime.Receipt, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		key, err := loadKeypair()
		if err != nil {
			return err
		}
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		receipt, err := fn(cmd, c, key, args)
		if err != nil {
			if receipt != nil && len(receipt.Logs) > 0 && !viper.GetBool("json") {
				for _, line := range receipt.Logs {
					fmt.Fprintln(cmd.ErrOrStderr(), line)
				}
			}
			return err
		}
		return printReceipt(cmd, receipt)
	}
}

func parsePaperID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid paper id %q", s)
	}
	return id, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the program state with the keypair as admin",
		Args:  cobra.NoArgs,
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, _ []string) (*runtime.Receipt, error) {
			return c.Initialize(cmd.Context(), key)
		}),
	}
}

func submitCmd() *cobra.Command {
	var (
		args instruction.SubmitPaperArgs
		goal string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a draft paper",
		Args:  cobra.NoArgs,
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, _ []string) (*runtime.Receipt, error) {
			var err error
			if args.FundingGoal, err = parseAmount(goal, c.Program().Decimals); err != nil {
				return nil, err
			}
			id, receipt, err := c.SubmitPaper(cmd.Context(), key, args)
			if err == nil && !viper.GetBool("json") {
				fmt.Fprintf(cmd.OutOrStdout(), "Paper:     %d\n", id)
			}
			return receipt, err
		}),
	}
	f := cmd.Flags()
	f.StringVar(&args.Title, "title", "", "paper title (1-100 characters)")
	f.StringVar(&args.AbstractText, "abstract", "", "abstract (1-1000 characters)")
	f.StringVar(&args.IPFSHash, "ipfs", "", "IPFS hash of the manuscript")
	f.StringSliceVar(&args.Authors, "author", nil, "author name, repeat for each author (1-10)")
	f.StringVar(&goal, "goal", "", "funding goal in tokens, e.g. 250.5")
	f.Uint64Var(&args.FundingPeriodDays, "days", 30, "funding period in days")
	for _, name := range []string{"title", "abstract", "ipfs", "author", "goal"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func paperIDCmd(use, short string, fn func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, id uint64) (*runtime.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <paper-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, args []string) (*runtime.Receipt, error) {
			id, err := parsePaperID(args[0])
			if err != nil {
				return nil, err
			}
			return fn(cmd, c, key, id)
		}),
	}
}

func publish(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, id uint64) (*runtime.Receipt, error) {
	return c.PublishPaper(cmd.Context(), key, id)
}

func claim(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, id uint64) (*runtime.Receipt, error) {
	return c.ClaimFunds(cmd.Context(), key, id)
}

func fundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <paper-id> <amount>",
		Short: "Contribute tokens to a published paper; the platform fee is taken from the amount",
		Args:  cobra.ExactArgs(2),
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, args []string) (*runtime.Receipt, error) {
			id, err := parsePaperID(args[0])
			if err != nil {
				return nil, err
			}
			decimals := c.Program().Decimals
			amount, err := parseAmount(args[1], decimals)
			if err != nil {
				return nil, err
			}
			seq, receipt, err := c.FundPaper(cmd.Context(), key, id, amount)
			if err == nil && !viper.GetBool("json") {
				fmt.Fprintf(cmd.OutOrStdout(), "Funding:   #%d of %s tokens\n", seq, notify.FormatAmount(amount, decimals))
			}
			return receipt, err
		}),
	}
}

func voteCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "vote <paper-id>",
		Short: "Vote on a published paper, weighted by token balance",
		Args:  cobra.ExactArgs(1),
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, args []string) (*runtime.Receipt, error) {
			id, err := parsePaperID(args[0])
			if err != nil {
				return nil, err
			}
			return c.VotePaper(cmd.Context(), key, id, !down)
		}),
	}
	cmd.Flags().BoolVar(&down, "down", false, "cast a downvote")
	return cmd
}

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Toggle the program pause flag (admin only)",
		Args:  cobra.NoArgs,
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, _ []string) (*runtime.Receipt, error) {
			return c.TogglePause(cmd.Context(), key)
		}),
	}
}

func settingsCmd() *cobra.Command {
	var (
		fee       uint16
		minGoal   string
		maxPeriod int64
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Update platform settings (admin only); unset flags keep their value",
		Args:  cobra.NoArgs,
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, _ []string) (*runtime.Receipt, error) {
			var args instruction.UpdateSettingsArgs
			f := cmd.Flags()
			if f.Changed("fee-bps") {
				args.PlatformFeeRate = &fee
			}
			if f.Changed("min-goal") {
				goal, err := parseAmount(minGoal, c.Program().Decimals)
				if err != nil {
					return nil, err
				}
				args.MinFundingGoal = &goal
			}
			if f.Changed("max-period") {
				args.MaxFundingPeriod = &maxPeriod
			}
			if args.PlatformFeeRate == nil && args.MinFundingGoal == nil && args.MaxFundingPeriod == nil {
				return nil, fmt.Errorf("nothing to update: set --fee-bps, --min-goal or --max-period")
			}
			return c.UpdateSettings(cmd.Context(), key, args)
		}),
	}
	cmd.Flags().Uint16Var(&fee, "fee-bps", 0, "platform fee in basis points (max 1000)")
	cmd.Flags().StringVar(&minGoal, "min-goal", "", "minimum funding goal in tokens")
	cmd.Flags().Int64Var(&maxPeriod, "max-period", 0, "maximum funding period in seconds")
	return cmd
}

func createTokenAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-token-account",
		Short: "Open the keypair's token account for the program mint",
		Args:  cobra.NoArgs,
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, _ []string) (*runtime.Receipt, error) {
			addr, receipt, err := c.CreateTokenAccount(cmd.Context(), key)
			if err == nil && !viper.GetBool("json") {
				fmt.Fprintf(cmd.OutOrStdout(), "Account:   %s\n", addr)
			}
			return receipt, err
		}),
	}
}

func mintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint <owner> <amount>",
		Short: "Mint tokens into owner's token account (mint authority only)",
		Args:  cobra.ExactArgs(2),
		RunE: signed(func(cmd *cobra.Command, c *biox.Client, key solana.PrivateKey, args []string) (*runtime.Receipt, error) {
			owner, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid owner %q: %w", args[0], err)
			}
			amount, err := parseAmount(args[1], c.Program().Decimals)
			if err != nil {
				return nil, err
			}
			return c.MintTo(cmd.Context(), key, owner, amount)
		}),
	}
}
