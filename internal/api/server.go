// Package api is the HTTP control surface: status, manual trades, bot
// configuration, the decision log and a WebSocket feed of new log entries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"papertrader/internal/bot"
	"papertrader/internal/marketdata"
	"papertrader/internal/model"
	"papertrader/internal/portfolio"
)

// TradeHistory is implemented by stores that keep a trade journal.
type TradeHistory interface {
	RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error)
}

// Deps are the handlers' collaborators. Journal and Hub may be nil.
type Deps struct {
	Bot        *bot.Bot
	Ledger     *portfolio.Ledger
	Universe   *marketdata.Universe
	Journal    TradeHistory
	Hub        *Hub
	TOTPSecret string
	Logger     *slog.Logger
}

type handlers struct {
	Deps
	log *slog.Logger
	now func() time.Time
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(d Deps) chi.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handlers{Deps: d, log: d.Logger.With(slog.String("component", "api")), now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.traceRequests)
	r.Use(cors)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	if d.Hub != nil {
		r.Get("/ws", d.Hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/status", h.status)
		r.Get("/trades", h.trades)
		r.Get("/bot/config", h.getBotConfig)
		r.Get("/bot/logs", h.botLogs)

		r.Group(func(r chi.Router) {
			r.Use(RequireTOTP(d.TOTPSecret))
			r.Post("/trade", h.trade)
			r.Post("/bot/config", h.setBotConfig)
		})
	})
	return r
}

type statusResponse struct {
	MarketData map[string][]model.AssetSnapshot `json:"marketData"`
	Source     string                           `json:"source"`
	FetchedAt  time.Time                        `json:"fetchedAt"`
	Portfolio  *model.Portfolio                 `json:"portfolio"`
	Summary    portfolio.Summary                `json:"summary"`
	Bot        bot.Status                       `json:"bot"`
	ServerTime time.Time                        `json:"serverTime"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	snap := h.Universe.Current()
	pf := h.Ledger.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		MarketData: snap.ByMarket(),
		Source:     snap.Source,
		FetchedAt:  snap.FetchedAt,
		Portfolio:  pf,
		Summary:    portfolio.Summarize(pf, h.Universe.Price),
		Bot:        h.Bot.Status(),
		ServerTime: h.now().UTC(),
	})
}

type tradeRequest struct {
	Symbol string  `json:"symbol"`
	Type   string  `json:"type"`
	Qty    int64   `json:"qty"`
	Price  float64 `json:"price"`
}

type tradeResponse struct {
	Success   bool             `json:"success"`
	Portfolio *model.Portfolio `json:"portfolio"`
}

func (h *handlers) trade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	pf, err := h.Bot.ManualTrade(r.Context(), req.Symbol, req.Type, req.Qty, req.Price)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, tradeResponse{Success: true, Portfolio: pf})
	case errors.Is(err, portfolio.ErrInsufficientFunds):
		writeError(w, "Insufficient Funds", http.StatusBadRequest)
	case errors.Is(err, portfolio.ErrInsufficientHoldings):
		writeError(w, "Insufficient Holdings", http.StatusBadRequest)
	case errors.Is(err, portfolio.ErrInvalidQuantity), errors.Is(err, bot.ErrInvalidSide):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bot.ErrUnknownSymbol):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		h.log.Error("manual trade failed", slog.Any("err", err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *handlers) trades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	if h.Journal != nil {
		trades, err := h.Journal.RecentTrades(r.Context(), limit)
		if err == nil {
			writeJSON(w, http.StatusOK, trades)
			return
		}
		h.log.Warn("journal unavailable, serving in-memory history", slog.Any("err", err))
	}

	// Newest first, like the journal.
	hist := h.Ledger.Snapshot().History
	out := make([]model.TradeRecord, 0, min(limit, len(hist)))
	for i := len(hist) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, hist[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getBotConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Bot.GetConfig())
}

func (h *handlers) setBotConfig(w http.ResponseWriter, r *http.Request) {
	var patch bot.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cfg, err := h.Bot.SetConfig(r.Context(), patch)
	if err != nil {
		if errors.Is(err, bot.ErrInvalidConfig) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) botLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Bot.RecentLogs())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
