// Package server exposes the tool, model, datastore, orchestrator and file
// surfaces over HTTP. Route-layer errors surface as JSON error responses;
// tool executions always come back 200 with an error-status result.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/intellisync/go-mcp/pkg/files"
	"github.com/intellisync/go-mcp/pkg/models"
	"github.com/intellisync/go-mcp/pkg/orchestrator"
	"github.com/intellisync/go-mcp/pkg/store"
	"github.com/intellisync/go-mcp/pkg/tool"
)

// Options wire the service layers into a Server.
type Options struct {
	Addr         string // defaults to :8080
	Version      string
	Tools        *tool.Manager
	Models       *models.Manager
	Registry     *models.Registry
	Orchestrator *orchestrator.Orchestrator
	Files        *files.Service
	Store        store.Store
	Logger       *logrus.Logger
}

type Server struct {
	addr         string
	version      string
	tools        *tool.Manager
	models       *models.Manager
	registry     *models.Registry
	orchestrator *orchestrator.Orchestrator
	files        *files.Service
	store        store.Store
	log          *logrus.Logger
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Server{
		addr:         opts.Addr,
		version:      opts.Version,
		tools:        opts.Tools,
		models:       opts.Models,
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		files:        opts.Files,
		store:        opts.Store,
		log:          opts.Logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	if s.tools != nil {
		mux.HandleFunc("POST /tools/execute", s.handleToolExecute)
		mux.HandleFunc("POST /tools/execute-parallel", s.handleToolExecuteParallel)
		mux.HandleFunc("GET /tools", s.handleToolList)
		mux.HandleFunc("GET /tools/{name}/capabilities", s.handleToolCapabilities)
		mux.HandleFunc("GET /tools/history", s.handleToolHistory)
		mux.HandleFunc("DELETE /tools/history", s.handleToolHistoryClear)
	}

	if s.models != nil {
		mux.HandleFunc("POST /models/generate", s.handleGenerate)
		mux.HandleFunc("POST /models/embeddings", s.handleEmbeddings)
		mux.HandleFunc("POST /models/vision", s.handleVision)
		mux.HandleFunc("POST /models/transcribe", s.handleTranscribe)
		mux.HandleFunc("GET /models/usage", s.handleModelUsage)
	}
	if s.registry != nil {
		mux.HandleFunc("GET /models/configs", s.handleModelConfigs)
	}

	if s.orchestrator != nil {
		mux.HandleFunc("POST /orchestrator/launch", s.handleOrchestratorLaunch)
		mux.HandleFunc("GET /orchestrator/status/{id}", s.handleOrchestratorStatus)
		mux.HandleFunc("POST /orchestrator/stop/{id}", s.handleOrchestratorStop)
		mux.HandleFunc("GET /orchestrator/tasks/{id}", s.handleOrchestratorTasks)
		mux.HandleFunc("POST /orchestrator/reassign", s.handleOrchestratorReassign)
		mux.HandleFunc("GET /orchestrator/health", s.handleOrchestratorHealth)
	}

	if s.files != nil {
		mux.HandleFunc("POST /files/upload", s.handleFileUpload)
		mux.HandleFunc("GET /files/search", s.handleFileSearch)
		mux.HandleFunc("GET /files/{project}", s.handleFileList)
		mux.HandleFunc("GET /files/{project}/{id}", s.handleFileDownload)
		mux.HandleFunc("DELETE /files/{project}/{id}", s.handleFileDelete)
		mux.HandleFunc("POST /files/{project}/{id}/rename", s.handleFileRename)
		mux.HandleFunc("POST /files/{project}/{id}/share", s.handleFileShare)
		mux.HandleFunc("POST /files/{project}/folders", s.handleFileCreateFolder)
	}

	if s.store != nil {
		mux.HandleFunc("POST /records/{table}", s.handleRecordInsert)
		mux.HandleFunc("GET /records/{table}", s.handleRecordSelect)
		mux.HandleFunc("GET /records/{table}/{id}", s.handleRecordGet)
		mux.HandleFunc("PATCH /records/{table}/{id}", s.handleRecordUpdate)
		mux.HandleFunc("DELETE /records/{table}/{id}", s.handleRecordDelete)
	}

	return s.logRequests(mux)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	s.log.WithField("addr", s.addr).Info("http server listening")
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": s.version})
}

func (s *Server) handleToolExecute(w http.ResponseWriter, r *http.Request) {
	var req tool.Request
	if !s.decode(w, r, &req) {
		return
	}
	result := s.tools.Execute(r.Context(), req.ToolName, req.Input)
	writeJSON(w, http.StatusOK, result.AsMap())
}

func (s *Server) handleToolExecuteParallel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []tool.Request `json:"requests"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	results := s.tools.ExecuteParallel(r.Context(), req.Requests)
	out := make(map[string]any, len(results))
	for name, result := range results {
		out[name] = result.AsMap()
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "total": len(out)})
}

func (s *Server) handleToolList(w http.ResponseWriter, _ *http.Request) {
	names := s.tools.AvailableTools()
	writeJSON(w, http.StatusOK, map[string]any{"tools": names, "total": len(names)})
}

func (s *Server) handleToolCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := s.tools.Capabilities(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleToolHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	entries := s.tools.History(limit)
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"tool_name": e.ToolName,
			"input":     e.Input,
			"result":    e.Result,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out, "total": len(out)})
}

func (s *Server) handleToolHistoryClear(w http.ResponseWriter, _ *http.Request) {
	s.tools.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service     string           `json:"service"`
		Messages    []models.Message `json:"messages"`
		Temperature *float32         `json:"temperature"`
		MaxTokens   *int             `json:"max_tokens"`
		Provider    string           `json:"provider"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.badRequest(w, "messages are required")
		return
	}

	resp, err := s.models.GenerateText(r.Context(), req.Service, req.Messages, &models.GenerateOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Provider:    req.Provider,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service    string   `json:"service"`
		Texts      []string `json:"texts"`
		Dimensions int      `json:"dimensions"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.models.GenerateEmbeddings(r.Context(), req.Service, req.Texts, req.Dimensions)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service   string `json:"service"`
		ImageURL  string `json:"image_url"`
		Prompt    string `json:"prompt"`
		MaxTokens int    `json:"max_tokens"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.ImageURL == "" {
		s.badRequest(w, "image_url is required")
		return
	}

	resp, err := s.models.AnalyzeImage(r.Context(), req.Service, req.ImageURL, req.Prompt, req.MaxTokens)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service  string `json:"service"`
		FilePath string `json:"file_path"`
		Language string `json:"language"`
		Prompt   string `json:"prompt"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		s.badRequest(w, "file_path is required")
		return
	}

	resp, err := s.models.TranscribeAudio(r.Context(), req.Service, req.FilePath, req.Language, req.Prompt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelUsage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.models.UsageStatistics())
}

func (s *Server) handleModelConfigs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.registry.ServiceConfigurations()})
}

func (s *Server) handleOrchestratorLaunch(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.LaunchRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.orchestrator.Launch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrchestratorStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.orchestrator.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrchestratorStop(w http.ResponseWriter, r *http.Request) {
	resp, err := s.orchestrator.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrchestratorTasks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.orchestrator.Tasks(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrchestratorReassign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID     string `json:"task_id"`
		NewAgentID string `json:"new_agent_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.orchestrator.Reassign(r.Context(), req.TaskID, req.NewAgentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrchestratorHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := s.orchestrator.Health(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxUploadSize = 64 << 20 // 64 MiB

func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.badRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	projectID := r.FormValue("project_id")
	if projectID == "" {
		s.badRequest(w, "project_id is required")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, "file is required")
		return
	}
	defer f.Close()

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			s.badRequest(w, "tags must be a JSON string array")
			return
		}
	}

	rec, err := s.files.Upload(r.Context(), projectID, header.Filename, f, files.UploadOptions{
		Category:    files.Category(r.FormValue("category")),
		Description: r.FormValue("description"),
		Visibility:  files.Visibility(r.FormValue("visibility")),
		Tags:        tags,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.files.List(r.Context(), r.PathValue("project"),
		files.Category(q.Get("category")), files.Visibility(q.Get("visibility")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	path, name, err := s.files.Open(r.Context(), r.PathValue("project"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Delete(r.Context(), r.PathValue("project"), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (s *Server) handleFileRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewName string `json:"new_name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.NewName == "" {
		s.badRequest(w, "new_name is required")
		return
	}

	resp, err := s.files.Rename(r.Context(), r.PathValue("project"), r.PathValue("id"), req.NewName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visibility string   `json:"visibility"`
		ShareWith  []string `json:"share_with"`
		Expiration string   `json:"expiration"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	switch files.Visibility(req.Visibility) {
	case files.VisibilityPublic, files.VisibilityPrivate, files.VisibilityShared:
	default:
		s.badRequest(w, "visibility must be public, private or shared")
		return
	}
	var expiration *time.Time
	if req.Expiration != "" {
		ts, err := time.Parse(time.RFC3339, req.Expiration)
		if err != nil {
			s.badRequest(w, "expiration must be an RFC 3339 timestamp")
			return
		}
		expiration = &ts
	}

	resp, err := s.files.Share(r.Context(), r.PathValue("project"), r.PathValue("id"), files.Visibility(req.Visibility), req.ShareWith, expiration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderName string `json:"folder_name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.FolderName == "" {
		s.badRequest(w, "folder_name is required")
		return
	}

	resp, err := s.files.CreateFolder(r.Context(), r.PathValue("project"), req.FolderName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.badRequest(w, "q is required")
		return
	}

	resp, err := s.files.Search(r.Context(), query, q.Get("project_id"), files.Category(q.Get("category")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordInsert(w http.ResponseWriter, r *http.Request) {
	var rec store.Record
	if !s.decode(w, r, &rec) {
		return
	}
	stored, err := s.store.Insert(r.Context(), r.PathValue("table"), rec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleRecordSelect(w http.ResponseWriter, r *http.Request) {
	filter := store.Record{}
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			filter[key] = vals[0]
		}
	}

	records, err := s.store.Select(r.Context(), r.PathValue("table"), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "total": len(records)})
}

func (s *Server) handleRecordGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("table"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordUpdate(w http.ResponseWriter, r *http.Request) {
	var changes store.Record
	if !s.decode(w, r, &changes) {
		return
	}
	rec, err := s.store.Update(r.Context(), r.PathValue("table"), r.PathValue("id"), changes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("table"), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
}

// writeError maps service errors onto HTTP statuses. The underlying message
// is carried through.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var terr *tool.Error
	var up *models.UpstreamError
	switch {
	case errors.As(err, &terr):
		switch terr.Code {
		case "TOOL_NOT_FOUND":
			status = http.StatusNotFound
		case "DUPLICATE_TOOL":
			status = http.StatusConflict
		default:
			status = http.StatusBadRequest
		}
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalid), errors.Is(err, files.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.As(err, &up):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are already written; an encode failure cannot be reported
	_ = json.NewEncoder(w).Encode(body)
}
