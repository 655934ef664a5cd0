package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filedrop/internal/api"
	"filedrop/internal/config"
	"filedrop/internal/jobs"
	"filedrop/internal/logging"
	"filedrop/internal/notifications"
)

const (
	shutdownTimeout = 5 * time.Second
	// multipartOverhead is allowed on top of the file payload limit for
	// boundaries and part headers.
	multipartOverhead = 1 << 20
)

type apiServer struct {
	bind   string
	apiKey string
	logger *slog.Logger
	jobs   *api.JobService
	notify notifications.Service

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, jobSvc *api.JobService, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Server.Bind),
		logger: logger,
		jobs:   jobSvc,
		notify: notifications.NewService(cfg.Notifications),
	}
	if cfg.Auth.Enabled {
		srv.apiKey = cfg.Auth.APIKey
	}
	// Transfers can run for minutes, so only header reads are bounded.
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/jobs/pending", s.authMiddleware(s.apiKey, s.handlePending))
	mux.HandleFunc("GET /api/download/{jobId}", s.authMiddleware(s.apiKey, s.handleDownload))
	mux.HandleFunc("POST /api/jobs/{jobId}/complete", s.authMiddleware(s.apiKey, s.handleComplete))
	mux.HandleFunc("GET /api/status", s.authMiddleware(s.apiKey, s.handleStatus))
	mux.HandleFunc("POST /api/upload", s.authMiddleware(s.apiKey, s.handleUpload))
	return mux
}

func (s *apiServer) listen() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	return nil
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// serve blocks until ctx is cancelled, then drains in-flight requests.
func (s *apiServer) serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.listen(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()
	s.log().Info("api server listening", slog.String("address", s.addr()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log().Warn("api server drain incomplete", logging.Error(err))
		_ = s.server.Close()
	}
	<-errCh
	return nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.Health())
}

func (s *apiServer) handlePending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(strings.TrimSpace(query.Get("limit")))
	list, total, err := s.jobs.ListPending(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log().Debug("pending jobs listed",
		logging.String(logging.FieldClientID, query.Get("clientId")),
		logging.Int("count", len(list)),
		logging.Int64("total", total),
	)
	s.writeJSON(w, http.StatusOK, api.NewPendingResponse(list, total))
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("jobId")
	dl, err := s.jobs.OpenDownload(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer dl.File.Close()

	s.log().Info("download started",
		logging.String(logging.FieldEventType, "download_started"),
		logging.String(logging.FieldJobID, dl.Job.ID),
		logging.String(logging.FieldClientID, r.URL.Query().Get("clientId")),
		logging.String("file", dl.Job.OriginalName),
		logging.Int64("size", dl.Size),
	)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Job.OriginalName}))
	http.ServeContent(w, r, dl.Job.OriginalName, dl.ModTime, dl.File)
}

func (s *apiServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req api.CompleteRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid request body")
			return
		}
	}
	job, err := s.jobs.CompleteJob(r.Context(), r.PathValue("jobId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.log().Info("job acknowledged",
		logging.String(logging.FieldEventType, "job_acknowledged"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldClientID, req.ClientID),
	)
	s.writeJSON(w, http.StatusOK, api.CompleteResponse{
		Success: true,
		Message: "Job marked as completed",
		Job:     api.FromCompletedJob(job),
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobs.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxFiles := s.jobs.MaxFiles()
	if limit := s.jobs.MaxFileBytes(); limit > 0 && maxFiles > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(maxFiles)*limit+multipartOverhead)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, "expected multipart/form-data body")
		return
	}

	accepted := make([]api.UploadedJob, 0, 1)
	var acceptedBytes int64
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeUploadError(w, err)
			return
		}
		if part.FormName() != "files" || part.FileName() == "" {
			part.Close()
			continue
		}
		if maxFiles > 0 && len(accepted) >= maxFiles {
			part.Close()
			s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, fmt.Sprintf("at most %d files per request", maxFiles))
			return
		}
		job, err := s.jobs.Accept(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			s.writeUploadError(w, err)
			return
		}
		accepted = append(accepted, api.FromUploadedJobs([]jobs.Job{job})...)
		acceptedBytes += job.Size
	}

	if len(accepted) == 0 {
		s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, "no files uploaded")
		return
	}
	s.writeJSON(w, http.StatusOK, api.UploadResponse{Success: true, Count: len(accepted), Jobs: accepted})

	ctx := context.WithoutCancel(r.Context())
	payload := notifications.Payload{"count": len(accepted), "bytes": acceptedBytes}
	go func() {
		if err := s.notify.Publish(ctx, notifications.EventUploadReceived, payload); err != nil {
			s.log().Warn("upload notification failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_failed"),
			)
		}
	}()
}

func (s *apiServer) writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, api.ErrTooLarge), errors.As(err, &maxErr):
		s.writeError(w, http.StatusRequestEntityTooLarge, api.CodeTooLarge, err.Error())
	default:
		s.log().Error("upload failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, api.CodeInternalError, "upload failed")
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, api.ErrFileMissing):
		s.writeError(w, http.StatusNotFound, api.CodeFileNotFound, "File not found on server")
	case errors.Is(err, api.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, api.CodeJobNotFound, "Job not found or already completed")
	default:
		s.log().Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, api.CodeInternalError, "internal server error")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
