package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/interaction"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("query", utils.Truncate(req.Query, 80)))

	answer, err := s.engine.Answer(r.Context(), req.Query)
	if err != nil {
		// The answer survives a log-write failure; the client still gets it.
		if errors.Is(err, rag.ErrLogWrite) {
			s.logger.Warn("answer served but not recorded", zap.Error(err))
		} else if errors.Is(err, rag.ErrOracle) {
			s.logger.Error("generation failed", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, "generation failed")
			return
		} else {
			s.logger.Error("ask failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{Results: []string{answer}})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Retrieval.DefaultTopK, s.config.Retrieval.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", utils.Truncate(req.Query, 80)), zap.Int("top_k", req.TopK))

	start := time.Now()
	results, err := s.engine.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	hits := make([]models.SearchHit, len(results))
	for i, res := range results {
		hits[i] = models.SearchHit{
			Reply:    res.Reply,
			Question: res.Question,
			Distance: res.Distance,
			Rank:     i + 1,
		}
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Hits:      hits,
		Total:     len(hits),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"records": s.engine.StoreSize(),
	}

	logPath := s.engine.LogPath()
	if rows, err := interaction.Read(logPath); err == nil {
		resp["interactions"] = len(rows)
	}
	resp["disk_usage_bytes"] = utils.DiskUsageBytes(
		s.config.Storage.EmbeddingCachePath,
		logPath,
	)

	resp["config"] = map[string]interface{}{
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"oracle_model":         s.config.Oracle.Model,
		"default_top_k":        s.config.Retrieval.DefaultTopK,
		"corpus_path":          s.config.Storage.CorpusPath,
		"interaction_log_path": logPath,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
