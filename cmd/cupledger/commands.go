package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/MarkoPoloResearchLab/cupledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"github.com/spf13/cobra"
)

const (
	flagItem          = "item"
	flagQuantity      = "quantity"
	flagStore         = "store"
	flagRedeemMethod  = "redeem-method"
	flagExpiryDate    = "expiry-date"
	flagExpiresInDays = "expires-in-days"
)

var (
	errExpiryConflict = errors.New("use either --expiry-date or --expires-in-days")
	errMissingExpiry  = errors.New("--expiry-date or --expires-in-days is required")
)

func newServeCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the deposit HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			store, cleanup, err := state.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			return httpapi.Run(ctx, state.cfg, store, state.logger)
		},
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request storage timeout (e.g. 5s)")
	return cmd
}

func newListCommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deposits ordered by expiry date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := state.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			return writeDeposits(cmd.OutOrStdout(), store.Records(), store)
		},
	}
}

func newAddCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new deposit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			item, _ := flags.GetString(flagItem)
			quantity, _ := flags.GetInt64(flagQuantity)
			storeName, _ := flags.GetString(flagStore)
			redeemMethod, _ := flags.GetString(flagRedeemMethod)
			rawExpiry, _ := flags.GetString(flagExpiryDate)
			days, _ := flags.GetInt(flagExpiresInDays)
			if rawExpiry != "" && flags.Changed(flagExpiresInDays) {
				return errExpiryConflict
			}
			if rawExpiry == "" && !flags.Changed(flagExpiresInDays) {
				return errMissingExpiry
			}

			store, cleanup, err := state.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			var expiryDate deposit.ExpiryDate
			if rawExpiry != "" {
				expiryDate, err = deposit.ParseExpiryDate(rawExpiry)
			} else {
				expiryDate, err = deposit.ExpiryDateInDays(store.Now(), days)
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), state.cfg.RequestTimeout)
			defer cancel()
			record, err := store.Create(ctx, deposit.Draft{
				Item:         item,
				Quantity:     quantity,
				Store:        storeName,
				RedeemMethod: redeemMethod,
				ExpiryDate:   expiryDate,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s: %s x%d, expires %s\n", record.ID, record.Item, record.Quantity, record.ExpiryDate.Display())
			return err
		},
	}
	cmd.Flags().String(flagItem, "", "item name, e.g. Latte")
	cmd.Flags().Int64(flagQuantity, 1, "number of cups")
	cmd.Flags().String(flagStore, "", "store the deposit was bought at")
	cmd.Flags().String(flagRedeemMethod, "", "redemption channel")
	cmd.Flags().String(flagExpiryDate, "", "expiry date (YYYY-MM-DD)")
	cmd.Flags().Int(flagExpiresInDays, 0, "days until expiry, when no date is given")
	return cmd
}

func newRedeemCommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <id>",
		Short: "Redeem one cup from a deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := deposit.NewDepositID(args[0])
			if err != nil {
				return err
			}
			store, cleanup, err := state.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), state.cfg.RequestTimeout)
			defer cancel()
			result, err := store.Redeem(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.Outcome {
			case deposit.RedeemMissed:
				_, err = fmt.Fprintf(out, "deposit %s not found\n", id)
			case deposit.RedeemExhausted:
				_, err = fmt.Fprintf(out, "redeemed the last cup of %s\n", id)
			default:
				_, err = fmt.Fprintf(out, "redeemed one cup of %s, %d left\n", id, result.Record.Quantity)
			}
			return err
		},
	}
}

func newDeleteCommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := deposit.NewDepositID(args[0])
			if err != nil {
				return err
			}
			store, cleanup, err := state.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), state.cfg.RequestTimeout)
			defer cancel()
			if err := store.Delete(ctx, id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return err
		},
	}
}

func newStatsCommand(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize deposits by expiry state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := state.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			stats := deposit.Aggregate(store.Records(), store.Now())
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"records: %d\ncups: %d\nactive cups: %d\nexpired cups: %d\nnon-expired records: %d\nexpiring soon: %d\nexpired records: %d\n",
				stats.RecordCount, stats.TotalQuantity, stats.ActiveQuantity, stats.ExpiredQuantity,
				stats.NonExpiredCount, stats.ExpiringSoonCount, stats.ExpiredCount)
			return err
		},
	}
}

func writeDeposits(out io.Writer, records []deposit.Record, store *deposit.Store) error {
	asOf := store.Now()
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tITEM\tCUPS\tSTORE\tREDEEM\tEXPIRES\tSTATUS\tDAYS")
	for _, record := range deposit.SortByExpiry(records) {
		status := deposit.Status(record, asOf)
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%d\n",
			record.ID, record.Item, record.Quantity, record.Store, record.RedeemMethod,
			record.ExpiryDate.Display(), status.State, status.DaysRemaining)
	}
	return writer.Flush()
}
