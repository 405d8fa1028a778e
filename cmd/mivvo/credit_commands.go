package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newCreditCommand(ctx *commandContext) *cobra.Command {
	creditCmd := &cobra.Command{
		Use:   "credit",
		Short: "Inspect and top up the credit ledger",
	}

	creditCmd.AddCommand(newCreditBalanceCommand(ctx))
	creditCmd.AddCommand(newCreditTransactionsCommand(ctx))
	creditCmd.AddCommand(newCreditGrantCommand(ctx))

	return creditCmd
}

func newCreditBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the owner's credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			balance, err := client.Balance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Account", "Balance", "Purchased", "Used", "Refunded"},
				[][]string{{
					balance.AccountID,
					balance.Balance,
					balance.TotalPurchased,
					balance.TotalUsed,
					balance.TotalRefunded,
				}},
				1, 2, 3, 4,
			))
			return nil
		},
	}
}

func newCreditTransactionsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Show the owner's ledger history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			transactions, err := client.Transactions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(transactions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions yet")
				return nil
			}
			rows := make([][]string, 0, len(transactions))
			for _, tx := range transactions {
				rows = append(rows, []string{
					strconv.FormatInt(tx.ID, 10),
					tx.Type,
					tx.Amount,
					tx.ReferenceID,
					tx.CreatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Type", "Amount", "Reference", "When"}, rows, 0, 2))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum transactions to show")
	return cmd
}

func newCreditGrantCommand(ctx *commandContext) *cobra.Command {
	var amount string
	var reference string
	var note string

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Credit the owner's account",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			balance, err := client.Grant(cmd.Context(), amount, reference, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %s credits; balance is now %s\n", amount, balance.Balance)
			return nil
		},
	}

	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Credit amount (decimal)")
	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Purchase reference id for idempotency")
	cmd.Flags().StringVar(&note, "note", "", "Free-form note on the grant")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
