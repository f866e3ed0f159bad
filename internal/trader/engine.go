// Package trader runs the per-account decision cycle: it schedules
// analyses, keeps cycles for one account from overlapping, and wires the
// market, decision, risk, execution and reconciliation components together.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binance-ai-trader/internal/binance"
	"binance-ai-trader/internal/config"
	"binance-ai-trader/internal/credentials"
	"binance-ai-trader/internal/decision"
	"binance-ai-trader/internal/executor"
	"binance-ai-trader/internal/ledger"
	"binance-ai-trader/internal/llm"
	"binance-ai-trader/internal/market"
	"binance-ai-trader/internal/models"
	"binance-ai-trader/internal/reconcile"
	"binance-ai-trader/internal/risk"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runner pairs a pipeline with the mutex that serializes its cycles. A
// single account never runs two overlapping cycles: the timer and the
// manual trigger contend on this lock and the loser is skipped, not queued.
type runner struct {
	pipeline *pipeline
	mu       sync.Mutex
}

// Engine owns one runner per enabled account. Cycles for different
// accounts run concurrently and share no mutable state.
type Engine struct {
	cfg       *config.Config
	db        *gorm.DB
	completer llm.Completer
	creds     credentials.Store
	logger    *zap.Logger

	mu      sync.Mutex
	runners map[uint]*runner

	// Client constructors, replaceable in tests.
	newSpotClient    func(apiKey, secretKey string) binance.SpotClientInterface
	newFuturesClient func(apiKey, secretKey string) binance.FuturesClientInterface
}

// NewEngine creates the trading engine.
func NewEngine(cfg *config.Config, db *gorm.DB, completer llm.Completer, creds credentials.Store, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		db:        db,
		completer: completer,
		creds:     creds,
		logger:    logger.Named("trader"),
		runners:   make(map[uint]*runner),
	}
	e.newSpotClient = func(apiKey, secretKey string) binance.SpotClientInterface {
		return binance.NewSpotClient(&cfg.Binance, apiKey, secretKey, logger)
	}
	e.newFuturesClient = func(apiKey, secretKey string) binance.FuturesClientInterface {
		return binance.NewFuturesClient(&cfg.Binance, apiKey, secretKey, logger)
	}
	return e
}

// Run starts one scheduling loop per auto-trade account and blocks until
// the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	var accounts []models.Account
	if err := e.db.Where("enable_auto_trade = ?", true).Find(&accounts).Error; err != nil {
		return fmt.Errorf("failed to load auto-trade accounts: %w", err)
	}
	if len(accounts) == 0 {
		e.logger.Warn("No auto-trade accounts configured")
	}

	var wg sync.WaitGroup
	for i := range accounts {
		account := accounts[i]
		r, err := e.runnerFor(&account)
		if err != nil {
			e.logger.Error("Skipping account, failed to build pipeline",
				zap.Uint("account_id", account.ID), zap.Error(err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			e.scheduleAccount(ctx, &account, r)
		}()
	}

	wg.Wait()
	e.logger.Info("All account schedulers stopped")
	return nil
}

// scheduleAccount ticks the account's cycle at its configured interval and
// appends fallback balance snapshots so the value series survives idle
// periods.
func (e *Engine) scheduleAccount(ctx context.Context, account *models.Account, r *runner) {
	interval := time.Duration(account.TradeIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	snapshotInterval := time.Duration(e.cfg.Engine.SnapshotIntervalMin) * time.Minute
	if snapshotInterval <= 0 {
		snapshotInterval = time.Hour
	}
	snapshotTicker := time.NewTicker(snapshotInterval)
	defer snapshotTicker.Stop()

	e.logger.Info("Account scheduler started",
		zap.Uint("account_id", account.ID),
		zap.String("mode", account.Mode),
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Account scheduler stopping", zap.Uint("account_id", account.ID))
			return
		case <-ticker.C:
			if err := e.runCycle(ctx, r); err != nil {
				e.logger.Error("Cycle failed", zap.Uint("account_id", account.ID), zap.Error(err))
			}
		case <-snapshotTicker.C:
			e.recordSnapshot(r)
		}
	}
}

// TriggerCycle runs one cycle for the account immediately, e.g. from a user
// action. It fails instead of queueing when a cycle is already running.
func (e *Engine) TriggerCycle(ctx context.Context, accountID uint) error {
	var account models.Account
	if err := e.db.First(&account, accountID).Error; err != nil {
		return fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	r, err := e.runnerFor(&account)
	if err != nil {
		return err
	}

	if !r.mu.TryLock() {
		return fmt.Errorf("a cycle is already running for account %d", accountID)
	}
	defer r.mu.Unlock()
	return e.runLocked(ctx, r)
}

// runCycle is the timer entrypoint. A tick that lands while the previous
// cycle (or a manual trigger) is still running is skipped.
func (e *Engine) runCycle(ctx context.Context, r *runner) error {
	if !r.mu.TryLock() {
		e.logger.Warn("Skipping tick, previous cycle still running",
			zap.Uint("account_id", r.pipeline.account.ID))
		return nil
	}
	defer r.mu.Unlock()
	return e.runLocked(ctx, r)
}

func (e *Engine) runLocked(ctx context.Context, r *runner) error {
	if r.pipeline.account.Mode == models.ModeFutures {
		return r.pipeline.runFuturesCycle(ctx)
	}
	return r.pipeline.runSpotCycle(ctx)
}

func (e *Engine) recordSnapshot(r *runner) {
	p := r.pipeline
	var err error
	if p.account.Mode == models.ModeFutures {
		err = p.snapshots.RecordFutures(p.account, p.futuresClient)
	} else {
		err = p.snapshots.RecordSpot(p.account, p.spotClient)
	}
	if err != nil {
		e.logger.Warn("Fallback snapshot failed", zap.Uint("account_id", p.account.ID), zap.Error(err))
	}
}

// runnerFor returns the account's runner, building the pipeline on first
// use.
func (e *Engine) runnerFor(account *models.Account) (*runner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.runners[account.ID]; ok {
		return r, nil
	}

	p, err := e.buildPipeline(account)
	if err != nil {
		return nil, err
	}
	r := &runner{pipeline: p}
	e.runners[account.ID] = r
	return r, nil
}

func (e *Engine) buildPipeline(account *models.Account) (*pipeline, error) {
	apiKey, secretKey, err := e.creds.Resolve(account)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials: %w", err)
	}

	engineCfg := e.cfg.Engine
	log := e.logger.With(zap.Uint("account_id", account.ID), zap.String("mode", account.Mode))

	reader := ledger.NewReader(e.db, engineCfg.DustThreshold, log)
	p := &pipeline{
		account:         account,
		reader:          reader,
		engine:          decision.NewEngine(e.completer, e.db, log),
		gate:            risk.NewGate(e.db, reader, engineCfg.SpotConfidenceFloor, engineCfg.FuturesConfidenceFloor, log),
		snapshots:       reconcile.NewSnapshotRecorder(e.db, log),
		spotMinNotional: engineCfg.SpotMinNotional,
		logger:          log,
	}

	if account.Mode == models.ModeFutures {
		client := e.newFuturesClient(apiKey, secretKey)
		p.futuresClient = client
		p.gatherer = market.NewGatherer(nil, client, engineCfg.KlineInterval, engineCfg.KlineLimit, log)
		p.futuresExecutor = executor.NewFuturesExecutor(client, e.db, log)
		p.reconciler = reconcile.NewReconciler(e.db, client, engineCfg.DustThreshold, log)
	} else {
		client := e.newSpotClient(apiKey, secretKey)
		p.spotClient = client
		p.gatherer = market.NewGatherer(client, nil, engineCfg.KlineInterval, engineCfg.KlineLimit, log)
		p.spotExecutor = executor.NewSpotExecutor(client, e.db, log)
		p.spotRecorder = reconcile.NewSpotRecorder(e.db, engineCfg.DustThreshold, log)
	}
	return p, nil
}
