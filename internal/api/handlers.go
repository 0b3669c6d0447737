package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fedsearch/fedsearch/internal/cache"
	"github.com/fedsearch/fedsearch/internal/search"
	"github.com/fedsearch/fedsearch/internal/sqlgen"
	"github.com/fedsearch/fedsearch/internal/types"
)

type searchRequest struct {
	Query        string `json:"query"`
	ConnectionID string `json:"connection_id"`
	SearchSQL    bool   `json:"search_sql"`
	SearchDocs   bool   `json:"search_docs"`
	TopK         int    `json:"top_k"`
	PageSize     int    `json:"page_size"`
}

type sqlRequest struct {
	Query        string `json:"query"`
	SQL          string `json:"sql"`
	ConnectionID string `json:"connection_id"`
	Run          bool   `json:"run"`
}

type sqlResponse struct {
	Generated *sqlgen.GeneratedQuery `json:"generated,omitempty"`
	Entry     *cache.Entry           `json:"entry,omitempty"`
	Page      *cache.Page            `json:"page,omitempty"`
}

// indexResponse summarizes a rebuilt snapshot. Table embeddings stay
// server-side.
type indexResponse struct {
	ConnectionID string             `json:"connection_id"`
	Tables       int                `json:"tables"`
	Fingerprint  string             `json:"fingerprint"`
	CreatedAt    time.Time          `json:"created_at"`
	Errors       []types.TableError `json:"errors,omitempty"`
}

type connectionInfo struct {
	ID      string `json:"id"`
	Dialect string `json:"dialect"`
	Target  string `json:"target"`
}

type invalidateResponse struct {
	Target      string `json:"target"`
	Invalidated int    `json:"invalidated"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "fedsearch"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := s.engine.Search(r.Context(), req.Query, search.Options{
		ConnectionID: req.ConnectionID,
		SearchSQL:    req.SearchSQL,
		SearchDocs:   req.SearchDocs,
		TopK:         req.TopK,
		PageSize:     req.PageSize,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSQL translates a natural-language query, or validates and runs a
// caller-written statement. Generated SQL only executes when run is set and
// the verdict allows it; a rejection comes back with the verdict, not an
// error, so clients can show the reason.
func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hasQuery := strings.TrimSpace(req.Query) != ""
	hasSQL := strings.TrimSpace(req.SQL) != ""
	switch {
	case hasQuery && hasSQL:
		writeError(w, http.StatusBadRequest, "provide either query or sql, not both")
		return
	case !hasQuery && !hasSQL:
		writeError(w, http.StatusBadRequest, "query or sql is required")
		return
	case req.ConnectionID == "":
		writeError(w, http.StatusBadRequest, "connection_id is required")
		return
	}

	if hasSQL {
		entry, page, err := s.runStatement(r, req.ConnectionID, req.SQL)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sqlResponse{Entry: entry, Page: page})
		return
	}

	gq, err := s.engine.GenerateSQL(r.Context(), req.Query, req.ConnectionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	out := sqlResponse{Generated: gq}
	if req.Run && gq.Accepted() {
		entry, page, err := s.runStatement(r, req.ConnectionID, gq.SQLText)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out.Entry, out.Page = entry, page
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) runStatement(r *http.Request, connectionID, sqlText string) (*cache.Entry, *cache.Page, error) {
	entry, err := s.engine.ExecuteSQL(r.Context(), connectionID, sqlText)
	if err != nil {
		return nil, nil, err
	}

	page, err := s.engine.Page(r.Context(), entry.Key, 1, 0)
	if err != nil {
		return nil, nil, err
	}

	return entry, page, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.engine.IndexSchema(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{
		ConnectionID: snap.ConnectionID,
		Tables:       len(snap.Tables),
		Fingerprint:  snap.Fingerprint,
		CreatedAt:    snap.CreatedAt,
		Errors:       snap.Errors,
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.engine.Registry().List()

	out := make([]connectionInfo, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, connectionInfo{
			ID:      desc.ID,
			Dialect: desc.Dialect,
			Target:  desc.Target(),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.CacheStats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	pageNumber, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}

	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page_size must be an integer")
			return
		}
	}

	page, err := s.engine.Page(r.Context(), key, pageNumber, pageSize)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	n, err := s.engine.InvalidateCache(r.Context(), target)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if target == "" {
		target = "all"
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Target: target, Invalidated: n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
