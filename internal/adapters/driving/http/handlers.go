package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ScrapeRequest lists URLs to ingest
// @Description Scrape request
type ScrapeRequest struct {
	URLs     []string `json:"urls" example:"https://example.com/refunds"`
	RenderJS bool     `json:"render_js"`
}

// TaskResponse acknowledges an enqueued task
// @Description Enqueued task
type TaskResponse struct {
	TaskID string `json:"task_id" example:"3q2-7Y0k4y0aQf8bq1Y1xw"`
	Status string `json:"status" example:"pending"`
}

// ScrapeResponse reports a synchronous scrape
// @Description Per-URL outcome of a synchronous scrape
type ScrapeResponse struct {
	Results []*domain.IngestResult `json:"results"`
	Stored  int                    `json:"stored"`
	Failed  int                    `json:"failed"`
}

// RescrapeRequest holds rescrape options
type RescrapeRequest struct {
	RenderJS bool `json:"render_js"`
}

// AskRequest is a question over the caller's pages
// @Description Question request
type AskRequest struct {
	Question string `json:"question" example:"What is the refund window?"`
	TopK     int    `json:"top_k,omitempty" example:"5"`
}

// SummaryRequest lists URLs to summarise
// @Description Summary request
type SummaryRequest struct {
	URLs []string `json:"urls" example:"https://example.com/refunds"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the database and the task queue
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"status": "ready"}
	status := http.StatusOK

	for name, p := range map[string]Pinger{"database": s.db, "queue": s.queue} {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			checks["status"] = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, status, checks)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// handleSwagger serves the registered OpenAPI document
func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api docs not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

// Ingestion endpoints

// handleScrape godoc
// @Summary      Scrape URLs
// @Description  Enqueues ingestion of the URLs. With sync=true the URLs are ingested inline and per-URL results returned.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        X-User   header    string         false  "User key"
// @Param        sync     query     bool           false  "Ingest inline"
// @Param        request  body      ScrapeRequest  true   "URLs to scrape"
// @Success      200      {object}  ScrapeResponse
// @Success      202      {object}  TaskResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /api/v1/scrape [post]
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := GetUserKey(r.Context())

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		results, err := s.ingestService.ScrapeNow(r.Context(), user, req.URLs, req.RenderJS)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		stored := domain.Stored(results)
		writeJSON(w, http.StatusOK, ScrapeResponse{
			Results: results,
			Stored:  stored,
			Failed:  len(results) - stored,
		})
		return
	}

	task, err := s.ingestService.Scrape(r.Context(), user, req.URLs, req.RenderJS)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TaskResponse{TaskID: task.ID, Status: string(task.Status)})
}

// handleRescrape godoc
// @Summary      Rescrape a page
// @Description  Enqueues re-ingestion of a stored page. Old chunks stay until the new ones are stored.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        id       path      string           true   "Page ID"
// @Param        request  body      RescrapeRequest  false  "Options"
// @Success      202      {object}  TaskResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /api/v1/pages/{id}/rescrape [post]
func (s *Server) handleRescrape(w http.ResponseWriter, r *http.Request) {
	var req RescrapeRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	task, err := s.ingestService.Rescrape(r.Context(), GetUserKey(r.Context()), r.PathValue("id"), req.RenderJS)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TaskResponse{TaskID: task.ID, Status: string(task.Status)})
}

// Retrieval endpoints

// handleAsk godoc
// @Summary      Ask a question
// @Description  Answers from the caller's nearest stored chunks
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Param        request  body      AskRequest  true  "Question"
// @Success      200      {object}  domain.Answer
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse  "No matching content"
// @Failure      502      {object}  ErrorResponse  "Generation service error"
// @Router       /api/v1/ask [post]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	answer, err := s.answerService.Ask(r.Context(), GetUserKey(r.Context()), req.Question, req.TopK)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleSummary godoc
// @Summary      Summarise pages
// @Description  Summarises every stored chunk of the given URLs
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Param        request  body      SummaryRequest  true  "URLs"
// @Success      200      {object}  domain.Summary
// @Failure      404      {object}  ErrorResponse  "No matching content"
// @Router       /api/v1/summary [post]
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := s.answerService.Summarize(r.Context(), GetUserKey(r.Context()), req.URLs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Page endpoints

// handleListPages godoc
// @Summary      List pages
// @Tags         Pages
// @Produce      json
// @Success      200  {array}  domain.PageSummary
// @Router       /api/v1/pages [get]
func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.pageService.List(r.Context(), GetUserKey(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if pages == nil {
		pages = []*domain.PageSummary{}
	}
	writeJSON(w, http.StatusOK, pages)
}

// handleGetPage godoc
// @Summary      Get a page
// @Tags         Pages
// @Produce      json
// @Param        id   path      string  true  "Page ID"
// @Success      200  {object}  domain.Page
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/pages/{id} [get]
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.pageService.Get(r.Context(), GetUserKey(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleDeletePage godoc
// @Summary      Delete a page
// @Tags         Pages
// @Param        id   path  string  true  "Page ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/pages/{id} [delete]
func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.pageService.Delete(r.Context(), GetUserKey(r.Context()), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetUser godoc
// @Summary      Reset the caller
// @Description  Deletes the caller's user with every page and chunk
// @Tags         Pages
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /api/v1/reset [post]
func (s *Server) handleResetUser(w http.ResponseWriter, r *http.Request) {
	if err := s.pageService.ResetUser(r.Context(), GetUserKey(r.Context())); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "reset"})
}

// Task endpoints

// handleListTasks godoc
// @Summary      List tasks
// @Tags         Tasks
// @Produce      json
// @Param        limit  query  int  false  "Maximum tasks"
// @Success      200    {array}  domain.Task
// @Router       /api/v1/tasks [get]
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	tasks, err := s.ingestService.ListTasks(r.Context(), GetUserKey(r.Context()), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleGetTask godoc
// @Summary      Get task status
// @Description  Status of a scrape task; error holds per-URL failures
// @Tags         Tasks
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.ingestService.TaskStatus(r.Context(), GetUserKey(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleCancelTask godoc
// @Summary      Cancel a pending task
// @Tags         Tasks
// @Param        id   path  string  true  "Task ID"
// @Success      204
// @Failure      400  {object}  ErrorResponse  "Task already started"
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/tasks/{id} [delete]
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestService.CancelTask(r.Context(), GetUserKey(r.Context()), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin endpoints

// handleResetAll godoc
// @Summary      Clear all data
// @Description  Deletes every page and chunk of every user
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /api/v1/admin/reset [delete]
func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	if err := s.pageService.ResetAll(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "reset"})
}

// handleQueueStats godoc
// @Summary      Queue statistics
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  driven.QueueStats
// @Router       /api/v1/admin/queue [get]
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ingestService.QueueStats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Helpers

// mapError converts a service error to a status code and client message.
// Unclassified errors are reported as a generic 500.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoMatchingContent):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrRobotsBlocked):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrIngestInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrGenerationService):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, msg)
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
