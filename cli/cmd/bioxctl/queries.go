package main

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/malbeclabs/biox/indexer/pkg/notify"
)

func init() {
	rootCmd.AddCommand(paperCmd(), stateCmd(), balanceCmd())
}

func paperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paper <paper-id>",
		Short: "Show a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePaperID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			paper, err := c.Paper(cmd.Context(), id)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd, paper)
			}
			decimals := c.Program().Decimals
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Paper #%d: %s\n", paper.ID, paper.Title)
			fmt.Fprintf(out, "Status:    %s\n", paper.Status)
			fmt.Fprintf(out, "Author:    %s\n", paper.Author)
			fmt.Fprintf(out, "Authors:   %v\n", paper.Authors)
			fmt.Fprintf(out, "IPFS:      %s\n", paper.IPFSHash)
			fmt.Fprintf(out, "Funding:   %s / %s (%d contributions)\n",
				notify.FormatAmount(paper.FundingCurrent, decimals), notify.FormatAmount(paper.FundingGoal, decimals), paper.FundingCount)
			fmt.Fprintf(out, "Deadline:  %s\n", time.Unix(paper.FundingDeadline, 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "Votes:     +%d / -%d\n", paper.Upvotes, paper.Downvotes)
			return nil
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the program state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			st, err := c.ProgramState(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd, st)
			}
			decimals := c.Program().Decimals
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Admin:             %s\n", st.Admin)
			fmt.Fprintf(out, "Papers:            %d\n", st.PaperCount)
			fmt.Fprintf(out, "Total funding:     %s\n", notify.FormatAmount(st.TotalFunding, decimals))
			fmt.Fprintf(out, "Platform fee:      %d bps\n", st.PlatformFeeRate)
			fmt.Fprintf(out, "Min funding goal:  %s\n", notify.FormatAmount(st.MinFundingGoal, decimals))
			fmt.Fprintf(out, "Max funding period: %s\n", time.Duration(st.MaxFundingPeriod)*time.Second)
			fmt.Fprintf(out, "Paused:            %t\n", st.IsPaused)
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [owner]",
		Short: "Show a token balance; defaults to the keypair's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var owner solana.PublicKey
			if len(args) == 1 {
				var err error
				if owner, err = solana.PublicKeyFromBase58(args[0]); err != nil {
					return fmt.Errorf("invalid owner %q: %w", args[0], err)
				}
			} else {
				key, err := loadKeypair()
				if err != nil {
					return err
				}
				owner = key.PublicKey()
			}
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			acct, err := c.TokenAccount(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd, acct)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", owner, notify.FormatAmount(acct.Amount, c.Program().Decimals))
			return nil
		},
	}
}
