// Package risk runs the protective control loop of a scalping session:
// take profit, stop loss, trailing stop, time stop, and the daily loss
// cap. The loop only decides WHEN to leave a position; the actual exit
// always goes through the transaction coordinator like any other trade.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/equity"
	"github.com/shubhamtaywade82/dhan-scalper/internal/journal"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/metrics"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
	"github.com/shubhamtaywade82/dhan-scalper/internal/txn"
)

// State is the lifecycle of one risk-managed session.
type State string

const (
	// StateActive means every rule is live.
	StateActive State = "ACTIVE"

	// StateCooldown pauses all rules after a realized stop-loss; the
	// session returns to ACTIVE when the window elapses.
	StateCooldown State = "COOLDOWN"

	// StateHalted is terminal: the daily loss cap fired, every position
	// was flattened, and no further ticks do anything.
	StateHalted State = "HALTED"
)

// Config carries the rule parameters. Percentages are fractions
// (0.18 means 18%). A disabled rule is skipped entirely.
type Config struct {
	Interval           time.Duration // tick cadence of Run
	MinRefreshInterval time.Duration // per-position mark refresh floor

	TakeProfitPct       decimal.Decimal
	StopLossPct         decimal.Decimal
	TrailingStopPct     decimal.Decimal
	TrailingActivatePct decimal.Decimal
	TimeStop            time.Duration
	MaxDailyLoss        decimal.Decimal
	Cooldown            time.Duration
	ExitFee             decimal.Decimal // fee charged on each risk exit

	EnableTakeProfit   bool
	EnableStopLoss     bool
	EnableTrailingStop bool
	EnableTimeStop     bool
	EnableDailyLossCap bool
}

// Engine evaluates the rules against the live book every tick.
type Engine struct {
	cfg       Config
	sessionID string
	ledger    *ledger.Ledger
	book      *book.Book
	calc      *equity.Calculator
	coord     *txn.Coordinator
	prices    equity.PriceLookup // optional
	journal   journal.Store

	mu                sync.Mutex
	state             State
	sessionStartValue decimal.Decimal
	lastLossTime      time.Time
	lastRefresh       map[model.PositionKey]time.Time
	trailingArmed     map[model.PositionKey]bool

	nonce atomic.Uint64
	now   func() time.Time
}

// New creates a risk engine. The session's starting account value, the
// reference point for the daily loss cap, is captured immediately.
func New(cfg Config, sessionID string, l *ledger.Ledger, b *book.Book,
	calc *equity.Calculator, coord *txn.Coordinator,
	prices equity.PriceLookup, j journal.Store) *Engine {

	e := &Engine{
		cfg:           cfg,
		sessionID:     sessionID,
		ledger:        l,
		book:          b,
		calc:          calc,
		coord:         coord,
		prices:        prices,
		journal:       j,
		state:         StateActive,
		lastRefresh:   make(map[model.PositionKey]time.Time),
		trailingArmed: make(map[model.PositionKey]bool),
		now:           time.Now,
	}
	e.sessionStartValue = e.accountValue(calc.Calculate())
	return e
}

// accountValue is the full worth of the session: spendable cash, cash
// committed to open positions, and mark-to-market P&L. Opening a
// position moves cash from available to used and leaves this number
// unchanged, so the daily loss cap measures genuine losses rather than
// capital commitment.
func (e *Engine) accountValue(snap model.EquitySnapshot) decimal.Decimal {
	return e.ledger.Snapshot().Total.Add(snap.UnrealizedPnL)
}

// SetClock overrides the rule clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StartValue returns the account value captured at engine construction.
func (e *Engine) StartValue() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionStartValue
}

// Run evaluates the rules on cfg.Interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("risk engine started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("risk engine stopped")
			return
		case <-ticker.C:
			e.Tick(e.clock()())
		}
	}
}

func (e *Engine) clock() func() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Tick runs one full rule evaluation at the given instant. Exported so
// tests can drive the engine deterministically without the ticker.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	if e.state == StateHalted {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.refreshMarks(now)

	snap := e.calc.Calculate()
	metrics.Equity.Set(snap.TotalEquity.InexactFloat64())
	metrics.OpenPositions.Set(float64(e.book.Len()))
	e.recordEquity(snap)

	if e.checkDailyLossCap(now, snap) {
		return
	}
	if e.inCooldown(now) {
		return
	}

	for _, pos := range e.book.OpenPositions() {
		e.evaluatePosition(now, pos)
	}
}

// refreshMarks pulls fresh prices into the book, honoring the
// per-position refresh floor.
func (e *Engine) refreshMarks(now time.Time) {
	if e.prices == nil {
		return
	}
	for _, pos := range e.book.OpenPositions() {
		e.mu.Lock()
		last, seen := e.lastRefresh[pos.Key]
		if seen && e.cfg.MinRefreshInterval > 0 && now.Sub(last) < e.cfg.MinRefreshInterval {
			e.mu.Unlock()
			continue
		}
		e.lastRefresh[pos.Key] = now
		e.mu.Unlock()

		if px, ok := e.prices.LastPrice(pos.Key.Segment, pos.Key.SecurityID); ok {
			e.book.RefreshPrice(pos.Key, px)
		}
	}
}

// checkDailyLossCap halts the session and flattens everything when the
// drawdown from session start reaches the cap. Returns true when the
// session halted this tick.
func (e *Engine) checkDailyLossCap(now time.Time, snap model.EquitySnapshot) bool {
	if !e.cfg.EnableDailyLossCap || !e.cfg.MaxDailyLoss.IsPositive() {
		return false
	}

	drawdown := e.sessionStartValue.Sub(e.accountValue(snap))
	if drawdown.LessThan(e.cfg.MaxDailyLoss) {
		return false
	}

	e.mu.Lock()
	e.state = StateHalted
	e.mu.Unlock()

	slog.Warn("daily loss cap reached, halting session",
		"drawdown", drawdown.String(),
		"cap", e.cfg.MaxDailyLoss.String(),
	)
	for _, pos := range e.book.OpenPositions() {
		e.submitExit(now, pos, model.ReasonDailyLossCap)
	}
	return true
}

// inCooldown reports whether the session is still inside its cooldown
// window, transitioning back to ACTIVE when it elapsed.
func (e *Engine) inCooldown(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCooldown {
		return false
	}
	if now.Sub(e.lastLossTime) < e.cfg.Cooldown {
		return true
	}
	e.state = StateActive
	slog.Info("cooldown elapsed, session active")
	return false
}

// evaluatePosition applies the per-position rules in order; the first
// rule that fires wins.
func (e *Engine) evaluatePosition(now time.Time, pos model.Position) {
	avg := pos.AvgEntryPrice
	mark := pos.CurrentPrice
	if !avg.IsPositive() || !mark.IsPositive() {
		return
	}

	favorable := mark.Sub(avg)
	if pos.Key.Side == model.Short {
		favorable = favorable.Neg()
	}
	adverse := favorable.Neg()

	if e.cfg.EnableTimeStop && e.cfg.TimeStop > 0 &&
		now.Sub(pos.EntryTimestamp) >= e.cfg.TimeStop {
		e.submitExit(now, pos, model.ReasonTimeStop)
		return
	}

	if e.cfg.EnableTakeProfit && e.cfg.TakeProfitPct.IsPositive() &&
		favorable.GreaterThanOrEqual(e.cfg.TakeProfitPct.Mul(avg)) {
		e.submitExit(now, pos, model.ReasonTakeProfit)
		return
	}

	if e.cfg.EnableStopLoss && e.cfg.StopLossPct.IsPositive() &&
		adverse.GreaterThanOrEqual(e.cfg.StopLossPct.Mul(avg)) {
		res := e.submitExit(now, pos, model.ReasonStopLoss)
		if res.Success() && res.RealizedDelta.IsNegative() {
			e.enterCooldown(now)
		}
		return
	}

	if e.cfg.EnableTrailingStop && e.cfg.TrailingStopPct.IsPositive() {
		e.evaluateTrailing(now, pos, favorable)
	}
}

// evaluateTrailing arms the trailing stop once the move reaches the
// activation threshold, then exits on a retracement from the peak.
func (e *Engine) evaluateTrailing(now time.Time, pos model.Position, favorable decimal.Decimal) {
	e.mu.Lock()
	armed := e.trailingArmed[pos.Key]
	if !armed && e.cfg.TrailingActivatePct.IsPositive() &&
		favorable.GreaterThanOrEqual(e.cfg.TrailingActivatePct.Mul(pos.AvgEntryPrice)) {
		armed = true
		e.trailingArmed[pos.Key] = true
		slog.Info("trailing stop armed", "key", pos.Key.String(), "peak", pos.PeakPrice.String())
	}
	e.mu.Unlock()

	if !armed {
		return
	}

	retrace := pos.PeakPrice.Sub(pos.CurrentPrice)
	if pos.Key.Side == model.Short {
		retrace = retrace.Neg()
	}
	if retrace.GreaterThanOrEqual(e.cfg.TrailingStopPct.Mul(pos.PeakPrice.Abs())) {
		e.submitExit(now, pos, model.ReasonTrailingStop)
	}
}

// submitExit routes a full-size exit through the coordinator. A
// rejected exit leaves the position open; the rule fires again next
// tick with a fresh idempotency key.
func (e *Engine) submitExit(now time.Time, pos model.Position, reason model.ExitReason) model.Result {
	intent := model.Intent{
		Key:            pos.Key,
		Kind:           model.KindExit,
		Quantity:       pos.NetQuantity,
		Price:          pos.CurrentPrice,
		Fee:            e.cfg.ExitFee,
		Reason:         reason,
		IdempotencyKey: e.exitKey(pos.Key.SecurityID, reason, now),
	}

	res := e.coord.Execute(context.Background(), intent)
	if !res.Success() {
		slog.Warn("risk exit rejected",
			"key", pos.Key.String(), "reason", reason, "status", res.Status, "err", res.Error)
		return res
	}

	metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()
	e.mu.Lock()
	delete(e.trailingArmed, pos.Key)
	delete(e.lastRefresh, pos.Key)
	e.mu.Unlock()

	slog.Info("risk exit committed",
		"key", pos.Key.String(),
		"reason", reason,
		"qty", res.FilledQuantity,
		"realized", res.RealizedDelta.String(),
	)
	return res
}

func (e *Engine) enterCooldown(now time.Time) {
	if e.cfg.Cooldown <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateHalted {
		return
	}
	e.state = StateCooldown
	e.lastLossTime = now
	slog.Info("stop loss realized a loss, entering cooldown", "until", now.Add(e.cfg.Cooldown))
}

// exitKey synthesizes a unique idempotency key for one rule firing.
// Uniqueness per firing is the point: a retried tick after a rejected
// exit must not replay the rejection.
func (e *Engine) exitKey(securityID string, reason model.ExitReason, now time.Time) string {
	return fmt.Sprintf("risk_exit_%s_%s_%d_%d",
		securityID, reason, now.UnixNano(), e.nonce.Add(1))
}

func (e *Engine) recordEquity(snap model.EquitySnapshot) {
	if e.journal == nil {
		return
	}
	pt := &journal.EquityPoint{
		SessionID:     e.sessionID,
		Balance:       snap.Balance,
		UnrealizedPnL: snap.UnrealizedPnL,
		TotalEquity:   snap.TotalEquity,
		Timestamp:     snap.At,
	}
	if err := e.journal.RecordEquity(context.Background(), pt); err != nil {
		slog.Warn("equity sample not recorded", "err", err)
	}
}
