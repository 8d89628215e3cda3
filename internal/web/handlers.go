package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finvex/autotrader/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.repo.RecentRunSummaries(limitParam(r, 20))
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50)

	var (
		orders []storage.Order
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		orders, err = s.repo.OrdersByStatus(storage.OrderStatus(status), limit)
	} else {
		orders, err = s.repo.RecentOrders(limit)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50)
	q := r.URL.Query()

	userID, _ := strconv.ParseUint(q.Get("user_id"), 10, 32)
	symbol := q.Get("symbol")

	var (
		recs []storage.SignalExecution
		err  error
	)
	switch {
	case userID != 0 && symbol != "":
		recs, err = s.trail.ForUserSymbol(uint(userID), symbol, limit)
	case userID != 0:
		recs, err = s.trail.RecentForUser(uint(userID), limit)
	default:
		recs, err = s.trail.Recent(limit)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	balance, err := s.ledger.Balance(uint(userID))
	if err != nil {
		respondError(w, http.StatusNotFound, "balance not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"balance":        balance,
		"available_cash": balance.AvailableCash(),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	result, err := s.executor.ExecuteAutoTrading(r.Context(), time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecuteForUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	result, err := s.executor.ExecuteAutoTradingForUser(r.Context(), userID, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal server error")
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func limitParam(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			return v
		}
	}
	return fallback
}
