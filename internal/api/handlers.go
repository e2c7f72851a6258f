package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
)

const maxBodyBytes = 1 << 20

type suggestRequest struct {
	Industry          string   `json:"industry"`
	Keywords          []string `json:"keywords"`
	Limit             int      `json:"limit"`
	CheckAvailability *bool    `json:"check_availability"`
	ClientID          string   `json:"client_id"`
	TLD               string   `json:"tld"`
}

type suggestResponse struct {
	Success          bool                     `json:"success"`
	Suggestions      []orchestrator.Candidate `json:"suggestions"`
	Industry         string                   `json:"industry"`
	Keywords         []string                 `json:"keywords"`
	Source           orchestrator.Source      `json:"source"`
	Credits          int                      `json:"credits"`
	CacheKey         string                   `json:"cacheKey"`
	ProcessingTimeMS float64                  `json:"processing_time_ms"`
}

type taskRequest struct {
	BusinessID string `json:"businessId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	UseCache   *bool  `json:"useCache"`
	ClientID   string `json:"client_id"`
}

type taskResponse struct {
	Success          bool                `json:"success"`
	Result           string              `json:"result"`
	Cached           bool                `json:"cached"`
	Fallback         bool                `json:"fallback,omitempty"`
	Source           orchestrator.Source `json:"source"`
	CacheKey         string              `json:"cacheKey"`
	BusinessID       string              `json:"businessId"`
	Credits          int                 `json:"credits"`
	ProcessingTimeMS float64             `json:"processing_time_ms"`
}

type bulkRequest struct {
	BusinessIDs []string `json:"businessIds"`
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	ClientID    string   `json:"client_id"`
}

type bulkItem struct {
	BusinessID string `json:"businessId"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	Cached     bool   `json:"cached"`
	Error      string `json:"error,omitempty"`
}

type bulkResponse struct {
	Success      bool       `json:"success"`
	BatchID      string     `json:"batchId"`
	Results      []bulkItem `json:"results"`
	TotalCredits int        `json:"totalCredits"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
}

type generateRequest struct {
	Type     string         `json:"type"`
	Context  map[string]any `json:"context"`
	Format   string         `json:"format"`
	ClientID string         `json:"client_id"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	Content any    `json:"content"`
	Type    string `json:"type"`
	Credits int    `json:"credits"`
}

func (s *Server) suggestPost(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.runSuggest(w, r, req)
}

func (s *Server) suggestGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := suggestRequest{
		Industry: q.Get("industry"),
		ClientID: q.Get("client_id"),
		TLD:      q.Get("tld"),
	}
	for _, kw := range q["keywords"] {
		for _, part := range strings.Split(kw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.Keywords = append(req.Keywords, part)
			}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = limit
	}
	if raw := q.Get("check_availability"); raw != "" {
		verify, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "check_availability must be a boolean")
			return
		}
		req.CheckAvailability = &verify
	}
	s.runSuggest(w, r, req)
}

func (s *Server) runSuggest(w http.ResponseWriter, r *http.Request, req suggestRequest) {
	verify := s.cfg.Availability.Enabled
	if req.CheckAvailability != nil {
		verify = *req.CheckAvailability && s.cfg.Availability.Enabled
	}
	resp, err := s.orchestrator.Suggest(r.Context(), orchestrator.Request{
		Category: req.Industry,
		Keywords: req.Keywords,
		Limit:    req.Limit,
		Verify:   verify,
		ClientID: clientID(r, req.ClientID),
		TLD:      req.TLD,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestResponse{
		Success:          true,
		Suggestions:      resp.Candidates,
		Industry:         resp.Request.Category,
		Keywords:         resp.Request.Keywords,
		Source:           resp.Source,
		Credits:          resp.Credits,
		CacheKey:         resp.CacheKey,
		ProcessingTimeMS: resp.ElapsedMS,
	})
}

func (s *Server) task(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !s.decode(w, r, &req) {
		return
	}
	businessID := req.BusinessID
	if businessID == "" {
		businessID = "unknown"
	}
	resp, err := s.orchestrator.Task(r.Context(), orchestrator.Request{
		Category:      req.Type,
		Content:       req.Content,
		ClientID:      clientID(r, req.ClientID),
		SkipCacheRead: req.UseCache != nil && !*req.UseCache,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{
		Success:          true,
		Result:           resp.Text(),
		Cached:           resp.Source == orchestrator.SourceCache,
		Fallback:         resp.Source == orchestrator.SourceFallback,
		Source:           resp.Source,
		CacheKey:         resp.CacheKey,
		BusinessID:       businessID,
		Credits:          resp.Credits,
		ProcessingTimeMS: resp.ElapsedMS,
	})
}

func (s *Server) bulkTask(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.bulk.Run(r.Context(), orchestrator.BulkRequest{
		TargetIDs: req.BusinessIDs,
		Content:   req.Content,
		TaskType:  req.Type,
		ClientID:  clientID(r, req.ClientID),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]bulkItem, 0, len(out.Results))
	for _, res := range out.Results {
		item := bulkItem{BusinessID: res.TargetID, Success: res.Success, Cached: res.Cached, Error: res.Error}
		if res.Response != nil {
			item.Result = res.Response.Text()
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, bulkResponse{
		Success:      true,
		BatchID:      out.BatchID,
		Results:      items,
		TotalCredits: out.TotalCredits,
		Succeeded:    out.Succeeded,
		Failed:       out.Failed,
	})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = "general"
	}
	format := strings.ToLower(req.Format)
	out, err := s.orchestrator.Generate(r.Context(), orchestrator.GenerateRequest{
		ContentType: req.Type,
		Context:     req.Context,
		Structured:  format == "json" || format == "structured",
		ClientID:    clientID(r, req.ClientID),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var content any = out.Text
	if out.Structured != nil {
		content = out.Structured
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Success: true,
		Content: content,
		Type:    out.ContentType,
		Credits: out.Credits,
	})
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

func (s *Server) cacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cache cleared"})
}

func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	answer, err := s.orchestrator.Probe(r.Context())
	if err != nil {
		s.logger.Warn("provider probe failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   err.Error(),
			"message": "provider test failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  answer,
		"message": "provider is working",
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
	}
	msg := err.Error()
	switch {
	case errors.Is(err, orchestrator.ErrRateLimited):
		msg = "Rate limit exceeded"
	case errors.Is(err, orchestrator.ErrEmptyGeneration):
		msg = orchestrator.ErrEmptyGeneration.Error()
	}
	writeError(w, status, msg)
}

// clientID picks the rate-limit identity: body field, then X-Client-ID, then the remote IP.
func clientID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-Client-ID")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
