package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/config"
	"github.com/ttdog1020/Cryptobot-sub000/execution"
	"github.com/ttdog1020/Cryptobot-sub000/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run configured scenarios",
	Long: `Run the simulation scenario of one or more account configs.

Each config gets its own session: ledger, venue, safety monitor and
execution engine. Sessions run concurrently and share nothing but the
metrics registry.

Examples:
  trader run -f account.yaml
  trader run -f a.yaml -f b.yaml --metrics-addr :9090`,
	RunE: runRun,
}

var (
	runConfigPaths []string
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&runConfigPaths, "file", "f", nil, "path to config file (repeatable, required)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfgs := make([]*config.Config, 0, len(runConfigPaths))
	seen := map[string]string{}
	for _, path := range runConfigPaths {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[cfg.Account.ID]; dup {
			return fmt.Errorf("%s: account %s already defined in %s", path, cfg.Account.ID, prev)
		}
		seen[cfg.Account.ID] = path
		cfgs = append(cfgs, cfg)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := execution.NewMetrics()
	if runMetricsAddr != "" {
		srv := &http.Server{Addr: runMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var outMu sync.Mutex
	out := cmd.OutOrStdout()

	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range cfgs {
		g.Go(func() error {
			log, logCloser := newLogger(cfg.Log)
			defer logCloser.Close()

			sess, err := execution.NewFromConfig(cfg, nil, metrics, log)
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Account.ID, err)
			}
			defer sess.Close()

			rep, err := sess.RunScenario(gctx, cfg.Simulation)
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Account.ID, err)
			}

			outMu.Lock()
			defer outMu.Unlock()
			printReport(out, rep)
			return nil
		})
	}
	return g.Wait()
}

func printReport(w io.Writer, rep execution.RunReport) {
	st := rep.Status
	fmt.Fprintf(w, "Account %s (%s)\n", st.AccountID, st.Mode)

	if !rep.Decision.Allowed {
		fmt.Fprintln(w, "  ✗ Signal declined")
		for _, v := range rep.Decision.Violations {
			fmt.Fprintf(w, "    %s: %s\n", v.Code, v.Msg)
		}
	} else if p := rep.Decision.Plan; p != nil {
		fmt.Fprintf(w, "  Plan: %s %s size=%.6f entry=%.4f stop=%.4f risk=$%.2f\n",
			p.Side, p.Symbol, p.Size, p.Entry, p.Stop, p.RiskUSD)
	}

	if rep.Entry != nil {
		printResult(w, "Entry", *rep.Entry)
	}
	for _, r := range rep.Exits {
		printResult(w, "Exit", r)
	}
	for _, r := range rep.Closed {
		printResult(w, "Close", r)
	}

	fmt.Fprintf(w, "  Balance: $%.2f  Equity: $%.2f  Open: %d\n", st.Balance, st.Equity, st.OpenPositions)
	fmt.Fprintf(w, "  Orders: submitted=%d filled=%d rejected=%d safety=%d\n",
		st.Counters.Submitted, st.Counters.Filled, st.Counters.Rejected, st.Counters.SafetyRejections)
	if st.KillSwitch {
		fmt.Fprintf(w, "  ⚠ Kill switch engaged: %s\n", st.HaltReason)
	}
	fmt.Fprintln(w)
}

func printResult(w io.Writer, label string, r broker.ExecutionResult) {
	if !r.Success || r.Fill == nil {
		fmt.Fprintf(w, "  ✗ %s %s: %v\n", label, r.Status, r.Err)
		return
	}
	f := r.Fill
	fmt.Fprintf(w, "  ✓ %s %s %s qty=%.6f @ %.4f fee=$%.2f", label, f.Side, f.Symbol, f.Quantity, f.Price, f.Commission)
	if reason, ok := r.Metadata[sim.MetaExitReason]; ok {
		fmt.Fprintf(w, " (%v)", reason)
	}
	fmt.Fprintln(w)
}
