package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/config"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
	"github.com/ttdog1020/Cryptobot-sub000/journal"
	"github.com/ttdog1020/Cryptobot-sub000/risk"
	"github.com/ttdog1020/Cryptobot-sub000/safety"
	"github.com/ttdog1020/Cryptobot-sub000/sim"
)

// Session owns everything one account needs: its ledger, venue, monitor,
// risk engine and execution engine. Sessions share no mutable state.
type Session struct {
	Config  *config.Config
	Engine  *Engine
	Venue   *sim.Venue // nil outside simulated mode
	Monitor *safety.Monitor
	Risk    *risk.Engine
	Journal journal.Journal

	log *slog.Logger
}

// NewFromConfig builds a session from cfg. client is only consulted in live
// mode; dry-run mode uses a DryRunClient. metrics may be nil.
func NewFromConfig(cfg *config.Config, client broker.ExchangeClient, metrics *Metrics, log *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log = logging.OrDiscard(log).With("account", cfg.Account.ID)

	mode, err := ParseMode(cfg.Execution.Mode)
	if err != nil {
		return nil, err
	}

	// Only the paper venue writes ledger rows. Remote modes get a discarding
	// journal so they leave no empty ledger file behind.
	var j journal.Journal = journal.Discard{}
	if mode == ModeSimulated {
		if j, err = OpenJournal(cfg.Journal); err != nil {
			return nil, err
		}
	}

	s := &Session{
		Config: cfg,
		Risk: risk.NewEngine(risk.Config{
			RiskFraction:     cfg.Risk.RiskFraction,
			SLMultiplier:     cfg.Risk.SLATRMult,
			TPMultiplier:     cfg.Risk.TPATRMult,
			MinPositionValue: cfg.Risk.MinPositionValue,
			MaxExposure:      cfg.Risk.MaxExposure,
		}, log),
		Monitor: safety.NewMonitor(safety.Limits{
			MaxDailyLossPct:    cfg.Safety.MaxDailyLossPct,
			MaxRiskPerTradePct: cfg.Safety.MaxRiskPerTradePct,
			MaxExposurePct:     cfg.Safety.MaxExposurePct,
			MaxOpenTrades:      cfg.Safety.MaxOpenTrades,
			KillSwitchSignal:   cfg.Safety.KillSwitchSignal,
		}, cfg.Account.Balance, safety.WithLogger(log)),
		Journal: j,
		log:     log,
	}

	opts := Options{
		AccountID:              cfg.Account.ID,
		Mode:                   mode,
		Monitor:                s.Monitor,
		Metrics:                metrics,
		Logger:                 log,
		MaxConsecutiveFailures: cfg.Safety.MaxConsecutiveFails,
	}

	switch mode {
	case ModeSimulated:
		s.Venue = sim.NewVenue(sim.Config{
			AccountID:     cfg.Account.ID,
			Balance:       cfg.Account.Balance,
			Slippage:      cfg.Venue.Slippage,
			Commission:    cfg.Venue.Commission,
			AllowShorting: cfg.Venue.AllowShorting,
			TrailingStop:  cfg.Venue.TrailingStop.Enabled,
			Trail:         cfg.Venue.TrailingStop.Trail,
		}, j, log)
		opts.Venue = s.Venue
	case ModeDryRun:
		client = NewDryRunClient(cfg.Account.Balance, nil, log)
		fallthrough
	case ModeLive:
		if client == nil {
			_ = j.Close()
			return nil, fmt.Errorf("%w: %s needs an exchange client", broker.ErrVenueNotConfigured, mode)
		}
		opts.Remote = NewRemoteVenue(client, RemoteConfig{
			Name:      string(mode),
			Timeout:   cfg.Execution.Timeout.Std(),
			RateLimit: cfg.Execution.RateLimit,
			Burst:     cfg.Execution.Burst,
		}, log, metrics)
	}

	if s.Engine, err = New(opts); err != nil {
		_ = j.Close()
		return nil, err
	}
	return s, nil
}

// OpenJournal opens the ledger backend cfg names.
func OpenJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.Path)
	case "sqlite":
		return journal.NewSQLite(cfg.Path)
	case "memory", "":
		return journal.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}

func (s *Session) Close() error {
	return s.Journal.Close()
}

// Execute sizes sig against current equity and submits the resulting plan.
// A declined signal returns a nil result.
func (s *Session) Execute(ctx context.Context, sig risk.Signal) (risk.Decision, *broker.ExecutionResult) {
	equity, err := s.Engine.Equity(ctx)
	if err != nil {
		res := broker.Rejected(&broker.ExecutionFailure{Op: "equity", Err: err})
		return risk.Decision{}, &res
	}

	d := s.Risk.ApplyRiskToSignal(sig, equity)
	if !d.Allowed || d.Plan == nil {
		s.log.Info("signal declined", "symbol", sig.Symbol, "reason", d.Reason())
		return d, nil
	}

	res := s.Engine.SubmitPlan(ctx, *d.Plan)
	return d, &res
}

// RunReport is the outcome of RunScenario.
type RunReport struct {
	Decision risk.Decision
	Entry    *broker.ExecutionResult
	Exits    []broker.ExecutionResult
	Closed   []broker.ExecutionResult
	Status   Status
}

// RunScenario plays the configured simulation: one signal, then the price
// path with trailing stops and exits, then a final close-all at the last
// price.
func (s *Session) RunScenario(ctx context.Context, sc config.SimulationConfig) (RunReport, error) {
	var rep RunReport

	if sc.Symbol == "" {
		return rep, errors.New("run: simulation.symbol not set")
	}
	side, err := broker.ParseSide(sc.Side)
	if err != nil {
		return rep, fmt.Errorf("run: %w", err)
	}

	rep.Decision, rep.Entry = s.Execute(ctx, risk.Signal{
		Symbol:   sc.Symbol,
		Side:     side,
		Entry:    sc.Entry,
		ATR:      sc.ATR,
		Strategy: sc.Strategy,
	})

	last := sc.Entry
	for i, step := range sc.PriceSteps {
		delay, err := step.ParseDuration()
		if err != nil {
			return rep, fmt.Errorf("run: step %d: %w", i, err)
		}
		if err := sleep(ctx, delay); err != nil {
			break
		}

		last = step.Price
		prices := map[string]float64{sc.Symbol: step.Price}
		s.Engine.UpdatePositions(ctx, prices)
		rep.Exits = append(rep.Exits, s.Engine.ProcessExits(ctx, prices)...)
	}

	// flatten even when ctx was cancelled mid-path
	rep.Closed = s.Engine.CloseAllPositions(context.WithoutCancel(ctx), broker.PriceMap{sc.Symbol: last})

	if rep.Status, err = s.Engine.Status(ctx); err != nil {
		return rep, err
	}
	return rep, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
