package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-edit/internal/logging"
	"github.com/heimdex/heimdex-edit/internal/metrics"
	"github.com/heimdex/heimdex-edit/internal/upload"
	"github.com/heimdex/heimdex-edit/internal/web"
)

const (
	// multipart framing and form fields that may precede the file part
	formOverhead        = 1 << 20
	maxInstructionBytes = 64 << 10
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Sessions))

		r.Get("/", pageHandler(cfg))
		r.Get("/widget", getWidgetHandler(cfg))
		r.Delete("/widget", teardownHandler(cfg))
		r.Post("/widget/drop", dropHandler(cfg))
		r.Post("/widget/reset", resetHandler(cfg))
		r.Post("/widget/instruction", instructionHandler(cfg))
		r.Get("/preview/{id}", previewHandler(cfg))
		r.Head("/preview/{id}", previewHandler(cfg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(CORSAllowlist(cfg.AllowedOrigins))
		r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/edits", editsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Sessions != nil {
			resp.ActiveSessions = cfg.Sessions.Len()
		}
		if cfg.Previews != nil {
			resp.ActivePreviews = cfg.Previews.Active()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func pageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := cfg.Sessions.View(sessionID(r))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		data := web.PageData{View: v}
		if err := web.Render(w, data); err != nil {
			cfg.Logger.Error("page render failed", "error", err)
		}
	}
}

func getWidgetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, ViewToResponse(cfg.Sessions.View(sessionID(r))))
	}
}

func teardownHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Sessions.End(sessionID(r))
		w.WriteHeader(http.StatusNoContent)
	}
}

func dropHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := sessionID(r)
		logger := logging.WithSessionID(cfg.Logger, sid)

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+formOverhead)
		mr, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "expected a multipart form", "BAD_REQUEST")
			return
		}

		candidate, err := firstFilePart(mr, cfg)
		if err != nil {
			logger.Warn("failed to read dropped file", "error", err)
			WriteError(w, http.StatusBadRequest, "failed to read file", "BAD_REQUEST")
			return
		}

		var candidates []upload.Candidate
		if candidate != nil {
			defer candidate.Remove()
			candidates = []upload.Candidate{candidate}
		}

		var view upload.View
		result := metrics.ResultEmpty
		dropErr := cfg.Sessions.Do(sid, func(wg *upload.Widget) error {
			if candidate != nil {
				result = dropResult(wg.Validate(candidate))
			}
			err := wg.Drop(r.Context(), candidates)
			view = wg.View()
			return err
		})
		if dropErr != nil {
			result = metrics.ResultFailed
			logger.Error("drop failed", "error", dropErr)
		}
		if cfg.Metrics != nil {
			cfg.Metrics.ObserveDrop(result)
		}

		if !wantsJSON(r) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		if dropErr != nil {
			WriteError(w, http.StatusInternalServerError, view.ErrorMessage, "PREVIEW_FAILED")
			return
		}
		WriteJSON(w, http.StatusOK, ViewToResponse(view))
	}
}

// firstFilePart spools the first file part of the form. Later parts are
// not read.
func firstFilePart(mr *multipart.Reader, cfg ServerConfig) (*upload.FileCandidate, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}
		return upload.SpoolPart(part, cfg.SpoolDir, cfg.MaxUploadBytes)
	}
}

func dropResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultAccepted
	case errors.Is(err, upload.ErrWrongMediaType):
		return metrics.ResultWrongMediaType
	case errors.Is(err, upload.ErrTooLarge):
		return metrics.ResultTooLarge
	}
	return metrics.ResultFailed
}

func resetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var view upload.View
		cfg.Sessions.Do(sessionID(r), func(wg *upload.Widget) error {
			wg.Reset()
			view = wg.View()
			return nil
		})
		if cfg.Metrics != nil {
			cfg.Metrics.Resets.Inc()
		}

		if !wantsJSON(r) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		WriteJSON(w, http.StatusOK, ViewToResponse(view))
	}
}

func instructionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxInstructionBytes)

		var text string
		if isJSONBody(r) {
			var req InstructionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
			text = req.Instruction
		} else {
			if err := r.ParseForm(); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid form", "BAD_REQUEST")
				return
			}
			text = r.PostForm.Get("instruction")
		}

		var view upload.View
		cfg.Sessions.Do(sessionID(r), func(wg *upload.Widget) error {
			wg.SetInstruction(text)
			view = wg.View()
			return nil
		})

		if !wantsJSON(r) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		WriteJSON(w, http.StatusOK, ViewToResponse(view))
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" || !cfg.Sessions.OwnsPreview(sessionID(r), id) {
			WriteError(w, http.StatusNotFound, "preview not found", "NOT_FOUND")
			return
		}

		if err := cfg.Previews.Serve(w, r, id); err != nil {
			cfg.Logger.Error("preview error", "error", err, "preview_id", id)
		}
	}
}

// editsHandler accepts edit requests. Executing them is not implemented;
// the body is discarded.
func editsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, io.LimitReader(r.Body, maxInstructionBytes))
		w.WriteHeader(http.StatusNoContent)
	}
}

func wantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") != "" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
