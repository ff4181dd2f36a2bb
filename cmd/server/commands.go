package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recaphq/recap-api/internal/api"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/platform/postgres"
	"github.com/recaphq/recap-api/internal/platform/telemetry"
	"github.com/spf13/cobra"
)

// errDiscrepancies makes reconcile exit non-zero when balances drift from history.
var errDiscrepancies = errors.New("credit balances disagree with history")

// runtime is what every database-backed command starts from.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Provider
	app       *application
}

// bootstrap loads configuration, sets up logging and tracing and opens the
// database. The caller must call close.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	tp, err := telemetry.Setup(cfg.Telemetry, nil)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	app, err := newApplication(cfg, log, db)
	if err != nil {
		_ = db.Close()
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return &runtime{cfg: cfg, logger: log, telemetry: tp, app: app}, nil
}

func (r *runtime) close() {
	r.app.cleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Warn("failed to flush traces", "error", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recap-api",
		Short:         "Annual summary generation service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newProcessCmd("process", "Run one summary task batch", func(app *application) api.BatchRunner {
			return app.taskProcessor
		}),
		newProcessCmd("process-avatars", "Run one avatar task batch", func(app *application) api.BatchRunner {
			return app.avatarProcessor
		}),
		newReconcileCmd(),
		newCouponCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if migrateFirst {
				if err := postgres.Migrate(ctx, rt.app.db, rt.logger, "up"); err != nil {
					return err
				}
			}
			if err := rt.app.setupProcessors(ctx); err != nil {
				return err
			}
			handler, err := rt.app.handler()
			if err != nil {
				return err
			}
			return rt.app.startHTTPServer(ctx, handler)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|reset|redo]",
		Short:     "Run database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "version", "reset", "redo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			return postgres.Migrate(cmd.Context(), rt.app.db, rt.logger, command)
		},
	}
}

// newProcessCmd runs a single batch outside the HTTP trigger, for cron jobs
// that can reach the database directly.
func newProcessCmd(use, short string, pick func(*application) api.BatchRunner) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.app.setupProcessors(ctx); err != nil {
				return err
			}

			result, err := pick(rt.app).RunBatch(logger.WithLogger(ctx, rt.logger))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), api.NewBatchResponse(result))
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every credit balance from history and report mismatches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			discrepancies, err := rt.app.ledger.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if discrepancies == nil {
				discrepancies = []credit.Discrepancy{}
			}
			if err := writeJSON(cmd.OutOrStdout(), discrepancies); err != nil {
				return err
			}
			if len(discrepancies) > 0 {
				rt.logger.Error("ledger reconciliation found mismatches",
					slog.Int("accounts", len(discrepancies)))
				return errDiscrepancies
			}
			return nil
		},
	}
}

func newCouponCmd() *cobra.Command {
	coupon := &cobra.Command{
		Use:   "coupon",
		Short: "Coupon utilities",
	}

	var (
		length int
		count  int
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Print new welcome coupon codes",
		Long: "Print new welcome coupon codes. Codes are not stored; each user can " +
			"redeem one welcome code once through POST /api/coupons/redeem.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateCoupons(cmd.OutOrStdout(), length, count)
		},
	}
	generate.Flags().IntVar(&length, "length", credit.DefaultCouponCodeLength, "code length")
	generate.Flags().IntVar(&count, "count", 1, "number of codes")
	coupon.AddCommand(generate)
	return coupon
}

func generateCoupons(out io.Writer, length, count int) error {
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	for i := 0; i < count; i++ {
		code, err := credit.GenerateCouponCode(length)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, code); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
