// Package api provides the HTTP surface of the scalper: session and
// equity queries, manual order submission, and the dashboard WebSocket.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/equity"
	"github.com/shubhamtaywade82/dhan-scalper/internal/instrument"
	"github.com/shubhamtaywade82/dhan-scalper/internal/journal"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/metrics"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
	"github.com/shubhamtaywade82/dhan-scalper/internal/risk"
	"github.com/shubhamtaywade82/dhan-scalper/internal/txn"
)

// Service handles scalper HTTP operations. Order submissions are
// serialized further down by the transaction coordinator; handlers
// never mutate state themselves.
type Service struct {
	sessionID string
	coord     *txn.Coordinator
	ledger    *ledger.Ledger
	book      *book.Book
	calc      *equity.Calculator
	engine    *risk.Engine // optional, session state reporting
	journal   journal.Store
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates the API service. engine and hub may be nil.
func NewService(sessionID string, coord *txn.Coordinator, l *ledger.Ledger,
	b *book.Book, calc *equity.Calculator, engine *risk.Engine,
	j journal.Store, hub *WSHub) *Service {

	return &Service{
		sessionID: sessionID,
		coord:     coord,
		ledger:    l,
		book:      b,
		calc:      calc,
		engine:    engine,
		journal:   j,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /orders/entry and
// /orders/exit.
type OrderRequest struct {
	Instrument     string          `json:"instrument"` // {SEGMENT}:{SECURITY_ID}
	Side           string          `json:"side"`       // "LONG" or "SHORT"
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Fee            decimal.Decimal `json:"fee"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// SessionResponse is the JSON body of GET /session.
type SessionResponse struct {
	SessionID  string               `json:"session_id"`
	State      string               `json:"state"`
	StartValue decimal.Decimal      `json:"start_value"`
	Ledger     model.LedgerSnapshot `json:"ledger"`
	Equity     model.EquitySnapshot `json:"equity"`
}

// --- HTTP Handlers ---

// GetEquity handles GET /api/v1/equity
func (s *Service) GetEquity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.calc.Calculate())
}

// GetPositions handles GET /api/v1/positions
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.book.OpenPositions()
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetLedger handles GET /api/v1/ledger
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Snapshot())
}

// GetSession handles GET /api/v1/session
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{
		SessionID: s.sessionID,
		State:     string(risk.StateActive),
		Ledger:    s.ledger.Snapshot(),
		Equity:    s.calc.Calculate(),
	}
	if s.engine != nil {
		resp.State = string(s.engine.State())
		resp.StartValue = s.engine.StartValue()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTrades handles GET /api/v1/trades
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.journal.TradesBySession(r.Context(), s.sessionID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []journal.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetEquityCurve handles GET /api/v1/equity/curve
func (s *Service) GetEquityCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := s.journal.EquityCurve(r.Context(), s.sessionID)
	if err != nil {
		writeError(w, "failed to load equity curve", http.StatusInternalServerError)
		return
	}
	if curve == nil {
		curve = []journal.EquityPoint{}
	}
	writeJSON(w, http.StatusOK, curve)
}

// SubmitEntry handles POST /api/v1/orders/entry
func (s *Service) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	s.submitOrder(w, r, model.KindEntry)
}

// SubmitExit handles POST /api/v1/orders/exit
func (s *Service) SubmitExit(w http.ResponseWriter, r *http.Request) {
	s.submitOrder(w, r, model.KindExit)
}

func (s *Service) submitOrder(w http.ResponseWriter, r *http.Request, kind model.IntentKind) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key, err := instrument.ParseKey(req.Instrument)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	side := model.Side(req.Side)
	if !side.Valid() {
		writeError(w, "side must be LONG or SHORT", http.StatusBadRequest)
		return
	}

	intent := model.Intent{
		Key: model.PositionKey{
			Segment:    key.Segment,
			SecurityID: key.SecurityID,
			Side:       side,
		},
		Kind:           kind,
		Quantity:       req.Quantity,
		Price:          req.Price,
		Fee:            req.Fee,
		IdempotencyKey: req.IdempotencyKey,
		Reason:         model.ReasonManual,
	}
	if intent.IdempotencyKey == "" {
		intent.IdempotencyKey = txn.NewIdempotencyKey("api")
	}

	start := time.Now()
	res := s.coord.Execute(r.Context(), intent)
	metrics.OrderLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.OrdersTotal.WithLabelValues(string(kind), string(res.Status)).Inc()

	if !res.Success() {
		if res.Status == model.StatusExposureLimit {
			metrics.ExposureRejections.Inc()
		}
		writeJSON(w, statusCode(res.Status), res)
		return
	}

	if kind == model.KindExit {
		metrics.ExitsTotal.WithLabelValues(string(model.ReasonManual)).Inc()
	}

	slog.Info("order accepted",
		"kind", kind,
		"instrument", req.Instrument,
		"side", side,
		"qty", res.FilledQuantity,
		"order_id", res.OrderID,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "fill",
			Instrument: req.Instrument,
			Side:       string(side),
			Kind:       string(kind),
			Quantity:   res.FilledQuantity,
			Price:      req.Price.String(),
			Realized:   res.RealizedDelta.String(),
		})
		snap := s.calc.Calculate()
		s.wsHub.Broadcast(WSMessage{
			Type:    "equity",
			Balance: snap.Balance.String(),
			Equity:  snap.TotalEquity.String(),
		})
	}

	writeJSON(w, http.StatusOK, res)
}

// statusCode maps a coordinator status to an HTTP status.
func statusCode(st model.Status) int {
	switch st {
	case model.StatusInvalidPrice, model.StatusInvalidQuantity:
		return http.StatusBadRequest
	case model.StatusInsufficientBalance, model.StatusNoPosition, model.StatusExposureLimit:
		return http.StatusConflict
	case model.StatusRoutingError:
		return http.StatusBadGateway
	case model.StatusStorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
