package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/ingest"
	"github.com/pbaille/fieldmap/internal/projector"
	"github.com/pbaille/fieldmap/internal/store"
	"github.com/pbaille/fieldmap/internal/upload"
)

// Options configures a Server
type Options struct {
	Addr         string
	CORSOrigin   string
	MaxBodyBytes int64
	UploadsDir   string
	Logger       zerolog.Logger
}

// Server handles HTTP requests for the annotation API
type Server struct {
	store     *store.Store
	ingest    *ingest.Pipeline
	projector *projector.Projector
	uploads   *upload.Service
	opts      Options
	log       zerolog.Logger
}

// New creates a new API server
func New(s *store.Store, opts Options) *Server {
	return &Server{
		store:     s,
		ingest:    ingest.New(s, opts.Logger),
		projector: projector.New(s),
		uploads:   upload.New(opts.UploadsDir, s, opts.Logger),
		opts:      opts,
		log:       opts.Logger,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Processes
	mux.HandleFunc("POST /api/upload", s.uploadDocument)
	mux.HandleFunc("GET /api/processes", s.listProcesses)
	mux.HandleFunc("GET /api/processes/{id}", s.getProcess)

	// Annotations
	mux.HandleFunc("POST /api/pdf-annotation-mappings/bulk", s.bulkSave)
	mux.HandleFunc("GET /api/annotations/{processId}", s.listAnnotations)
	mux.HandleFunc("DELETE /api/annotations/clear/{processId}", s.clearAnnotations)

	// Field definitions
	mux.HandleFunc("GET /api/field-definitions/{processId}", s.fieldDefinitions)
	mux.HandleFunc("POST /app_admin/api/fetch-create-table", s.fetchCreateTable)

	// Uploaded files
	mux.Handle("GET "+upload.URLPrefix, http.StripPrefix(upload.URLPrefix, http.FileServer(http.Dir(s.opts.UploadsDir))))

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return s.withLogging(withCORS(s.opts.CORSOrigin, mux))
}

// Run starts the HTTP server and shuts it down when ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// withCORS adds CORS headers for the annotation frontend
func withCORS(origin string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	proc, err := s.uploads.Save(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, proc)
}

func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := s.store.ListProcesses(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

func (s *Server) getProcess(w http.ResponseWriter, r *http.Request) {
	proc, err := s.store.GetProcess(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proc)
}

func (s *Server) bulkSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var items []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil || items == nil {
		writeError(w, http.StatusBadRequest, "Expected array")
		return
	}

	res, err := s.ingest.Run(r.Context(), items)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listAnnotations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListByProcess(r.Context(), r.PathValue("processId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) clearAnnotations(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("processId")
	removed, err := s.store.ClearByProcess(r.Context(), pid)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info().Str("process", pid).Int("removed", removed).Msg("annotations cleared")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) fieldDefinitions(w http.ResponseWriter, r *http.Request) {
	var formID *string
	if v := r.URL.Query().Get("form_id"); v != "" {
		formID = &v
	}
	s.writeDefinitions(w, r, r.PathValue("processId"), formID)
}

// FetchCreateTableRequest is the request body of the table builder endpoint
type FetchCreateTableRequest struct {
	ProcessID json.RawMessage `json:"process_id"`
	FormID    json.RawMessage `json:"form_id"`
}

func (s *Server) fetchCreateTable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var req FetchCreateTableRequest
	// an empty or malformed body selects nothing
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
	}
	s.writeDefinitions(w, r, domain.Identifier(req.ProcessID), optionalFilter(req.FormID))
}

// optionalFilter is nil for an absent or null form id
func optionalFilter(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	v := domain.Identifier(raw)
	return &v
}

func (s *Server) writeDefinitions(w http.ResponseWriter, r *http.Request, processID string, formID *string) {
	defs, err := s.projector.FieldDefinitions(r.Context(), processID, formID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// fail maps an error to its HTTP status
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
