package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CountResponse is returned by /api/v1/users/count.
type CountResponse struct {
	Count int64 `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleAggregates lists one aggregate level. Query: chainId, and for daily
// levels from/to as unix seconds bounding the record date.
func (s *Server) handleAggregates(kind domain.AggregateKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := storage.AggregateFilter{Kind: kind}
		var err error
		if f.ChainID, err = queryInt(r, "chainId"); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if kind.IsDaily() {
			if f.From, err = queryInt(r, "from"); err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if f.To, err = queryInt(r, "to"); err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if f.From != 0 && f.To != 0 && f.From > f.To {
				s.writeError(w, http.StatusBadRequest, "from is after to")
				return
			}
		}

		list, err := s.stores.Aggregates.List(r.Context(), f)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if list == nil {
			list = []*domain.Aggregate{}
		}
		s.writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleTokenInfos(w http.ResponseWriter, r *http.Request) {
	infos, err := s.stores.TokenInfos.List(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if infos == nil {
		infos = []*domain.TokenInfo{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleUsersCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.stores.Users.Count(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chainID, err := strconv.ParseInt(vars["chainId"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid chainId: "+vars["chainId"])
		return
	}

	trades, err := s.stores.Trades.GetByPositionKey(r.Context(), chainID, vars["key"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}
