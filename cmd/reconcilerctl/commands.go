package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/app"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/config"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/gateway"
	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
	"github.com/commercetools/commercetools-payone-integration-sub001/pkg/logger"
)

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch [payment-id]",
		Short: "Run one dispatch pass over a payment",
		Long: `Advance the payment's transactions in order until one of them waits for
the gateway. Safe to repeat: transactions already sent are not sent again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.TransactionDispatcher.DispatchByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printPayment(cmd, p)
			})
		},
	}
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify [file]",
		Short: "Replay a recorded TransactionStatus notification",
		Long: `Read a notification body (key=value pairs separated by & or newlines)
from a file, or from stdin when the file is "-", and apply it like the
notification endpoint would.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := readNotification(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.NotificationDispatcher.Dispatch(ctx, n)
				if err != nil {
					return err
				}
				return printPayment(cmd, p)
			})
		},
	}
}

func sequenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sequence [payment-id]",
		Short: "Show the next sequence number of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Repository.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to load payment %s: %w", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), models.NextSequenceNumber(p))
				return nil
			})
		},
	}
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New("reconcilerctl", cfg.Environment)
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		log.Error("command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return err
	}
	return nil
}

func readNotification(stdin io.Reader, path string) (models.Notification, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return models.Notification{}, fmt.Errorf("failed to open notification: %w", err)
		}
		defer f.Close()
		r = f
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to read notification: %w", err)
	}
	values := gateway.ParseFormBody(string(body))
	if len(values) == 0 {
		return models.Notification{}, fmt.Errorf("notification %s contains no key=value pairs", path)
	}
	return models.NewNotification(values), nil
}

func printPayment(cmd *cobra.Command, p *models.Payment) error {
	out := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	fmt.Fprintf(out, "payment %s version %d interface %s\n", p.ID, p.Version, valueOrDash(p.InterfaceID))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSACTION\tTYPE\tSTATE\tINTERACTION\tAMOUNT")
	for _, tx := range p.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\n",
			tx.ID, tx.Type, tx.State, valueOrDash(tx.InteractionID), tx.Amount.Amount.StringFixed(2), tx.Amount.Currency)
	}
	return w.Flush()
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
