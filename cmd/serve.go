package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/classify"
	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/internal/pipeline"
	"github.com/harborview-partners/diligence-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e, cfg.Server.CORSAllowedOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(e *env, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", handleSubmit(e))
		r.Get("/", handleList(e))
		r.Get("/{id}", handleGet(e))
		r.Delete("/{id}", handleDelete(e))
		r.Post("/{id}/cancel", handleCancel(e))
		r.Get("/{id}/events", handleEvents(e))
	})

	return r
}

func handleSubmit(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Cap parse memory, not the upload size; the pipeline enforces
		// per-file limits itself and reports which file broke them.
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		var batch []model.UploadedDocument
		for field, headers := range r.MultipartForm.File {
			for _, h := range headers {
				f, err := h.Open()
				if err != nil {
					writeError(w, http.StatusBadRequest, "unreadable file "+h.Filename)
					return
				}
				content, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					writeError(w, http.StatusBadRequest, "unreadable file "+h.Filename)
					return
				}
				batch = append(batch, model.UploadedDocument{
					Name:      h.Filename,
					FieldName: field,
					MediaType: h.Header.Get("Content-Type"),
					SizeBytes: int64(len(content)),
					Content:   content,
				})
			}
		}

		opts := pipeline.DefaultOptions()
		opts.OwnerID = r.FormValue("owner_id")
		if depth := r.FormValue("analysis_depth"); depth != "" {
			opts.Depth = model.AnalysisDepth(depth)
		}
		if r.FormValue("include_market_intelligence") == "false" {
			opts.IncludeMarketIntelligence = false
		}
		if r.FormValue("include_due_diligence") == "false" {
			opts.IncludeDueDiligence = false
		}

		jobID, err := e.Orchestrator.Submit(r.Context(), batch, opts)
		if err != nil {
			var verr *classify.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
				return
			}
			zap.L().Error("submit job", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create job")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": jobID,
			"status": string(model.JobStatusProcessing),
		})
	}
}

func handleGet(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := e.Orchestrator.GetResult(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			zap.L().Error("get job", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleList(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.JobFilter{
			Status:  model.JobStatus(q.Get("status")),
			OwnerID: q.Get("owner_id"),
		}
		if v, err := strconv.Atoi(q.Get("limit")); err == nil {
			filter.Limit = v
		}
		if v, err := strconv.Atoi(q.Get("offset")); err == nil {
			filter.Offset = v
		}

		jobs, err := e.Store.List(r.Context(), filter)
		if err != nil {
			zap.L().Error("list jobs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list jobs")
			return
		}
		if jobs == nil {
			jobs = []model.AnalysisJob{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	}
}

func handleDelete(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		e.Orchestrator.Cancel(id)
		ok, err := e.Store.Delete(r.Context(), id)
		if err != nil {
			zap.L().Error("delete job", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to delete job")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCancel(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !e.Orchestrator.Cancel(id) {
			writeError(w, http.StatusConflict, "job is not running")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "canceling"})
	}
}

// handleEvents streams progress as server-sent events until the job
// reaches a terminal stage or the client disconnects.
func handleEvents(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		events, err := e.Orchestrator.Subscribe(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			zap.L().Error("subscribe job", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to subscribe")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
