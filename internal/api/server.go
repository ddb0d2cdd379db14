// Package api serves read-only views of the running economy over HTTP.
// GET endpoints are public. POST endpoints require the admin bearer token.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/talgya/glade-market/internal/economy"
	"github.com/talgya/glade-market/internal/engine"
	"github.com/talgya/glade-market/internal/persistence"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	DB       *persistence.DB // nil disables ledger endpoints
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Origins  []string

	httpServer *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/settlements", s.handleSettlements).Methods(http.MethodGet)
	api.HandleFunc("/settlements/{name}/market", s.handleMarket).Methods(http.MethodGet)
	api.HandleFunc("/settlements/{name}/participants", s.handleParticipants).Methods(http.MethodGet)

	ledger := NewRateLimiter(120, time.Minute)
	api.Handle("/trades", ledger.Middleware(http.HandlerFunc(s.handleTrades))).Methods(http.MethodGet)
	api.Handle("/settlements/{name}/pairs/{commodity}/{currency}",
		ledger.Middleware(http.HandlerFunc(s.handlePairStats))).Methods(http.MethodGet)

	api.HandleFunc("/speed", s.handleGetSpeed).Methods(http.MethodGet)
	api.HandleFunc("/speed", s.adminOnly(s.handleSetSpeed)).Methods(http.MethodPost)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	origins := s.Origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(router)
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "ledger", s.DB != nil)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no GLADE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	writeJSON(w, map[string]any{
		"name":           "Glade",
		"tick":           snap.Tick,
		"sim_time":       snap.SimTime,
		"speed":          s.Sim.Scheduler.Speed(),
		"running":        s.Sim.Scheduler.Running(),
		"settlements":    len(snap.Settlements),
		"trades":         snap.Trades,
		"total_trades":   snap.TotalTrades,
		"total_rejected": snap.Rejected,
	})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot().Settlements)
}

func (s *Server) settlement(w http.ResponseWriter, r *http.Request) (*engine.Settlement, bool) {
	name := mux.Vars(r)["name"]
	sett, ok := s.Sim.Settlement(name)
	if !ok {
		http.Error(w, fmt.Sprintf("settlement %q not found", name), http.StatusNotFound)
	}
	return sett, ok
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	sett, ok := s.settlement(w, r)
	if !ok {
		return
	}
	writeJSON(w, sett.Market.LastReport())
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	sett, ok := s.settlement(w, r)
	if !ok {
		return
	}
	names := make([]string, 0)
	for _, p := range sett.Market.Participants() {
		names = append(names, fmt.Sprint(p))
	}
	writeJSON(w, names)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "ledger disabled", http.StatusServiceUnavailable)
		return
	}
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradeLimit)
	}
	trades, err := s.DB.RecentTrades(r.URL.Query().Get("market"), limit)
	if err != nil {
		slog.Error("recent trades query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []persistence.TradeRecord{}
	}
	writeJSON(w, trades)
}

func (s *Server) handlePairStats(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "ledger disabled", http.StatusServiceUnavailable)
		return
	}
	sett, ok := s.settlement(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	pair := economy.Pair{Commodity: economy.Good(vars["commodity"]), Currency: economy.Good(vars["currency"])}
	stats, err := s.DB.PairStats(sett.Name, pair)
	if err != nil {
		slog.Error("pair stats query failed", "pair", pair, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"pair": pair, "stats": stats})
}

func (s *Server) handleGetSpeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]float64{"speed": s.Sim.Scheduler.Speed()})
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Sim.Scheduler.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": req.Speed})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write json failed", "error", err)
	}
}
