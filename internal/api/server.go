// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"video-insights-go/internal/logger"
	"video-insights-go/internal/pipeline"
	"video-insights-go/internal/types"
)

// Processor runs one upload through the pipeline.
type Processor interface {
	Process(ctx context.Context, req types.UploadRequest) (types.AnalysisResult, error)
}

// Options configures the HTTP surface.
type Options struct {
	MaxUploadBytes     int64
	RateLimitPerMinute int
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline  Processor
	log       *logger.Logger
	maxUpload int64
	rateLimit int
}

func NewServer(p Processor, log *logger.Logger, opts Options) *Server {
	return &Server{
		pipeline:  p,
		log:       log,
		maxUpload: opts.MaxUploadBytes,
		rateLimit: opts.RateLimitPerMinute,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLog(s.log))
	r.Use(chimw.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.rateLimit, time.Minute))
		r.Post("/upload_video", s.handleUpload)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "upload_video")

	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	upload, uerr := readUpload(r)
	if uerr != nil {
		log.WithError(uerr).Warn("invalid upload request")
		writeError(w, uerr.status, uerr.detail)
		return
	}
	log = log.WithField("filename", upload.Filename).WithField("bytes", len(upload.Data))
	log.Info("upload received")

	result, err := s.pipeline.Process(r.Context(), upload)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// uploadError is a request the pipeline never sees.
type uploadError struct {
	status int
	detail string
}

func (e *uploadError) Error() string { return e.detail }

func badUpload(err error) *uploadError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &uploadError{
			status: http.StatusRequestEntityTooLarge,
			detail: fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit),
		}
	}
	return &uploadError{status: http.StatusBadRequest, detail: "Invalid multipart form: " + err.Error()}
}

// readUpload reads the "file" part of a multipart body into memory.
// Nothing touches the disk here.
func readUpload(r *http.Request) (types.UploadRequest, *uploadError) {
	mr, err := r.MultipartReader()
	if err != nil {
		return types.UploadRequest{}, badUpload(err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return types.UploadRequest{}, &uploadError{status: http.StatusBadRequest, detail: "Missing file field"}
		}
		if err != nil {
			return types.UploadRequest{}, badUpload(err)
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		filename := part.FileName()
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return types.UploadRequest{}, badUpload(err)
		}
		return types.UploadRequest{Filename: filename, Data: data}, nil
	}
}

// statusFor maps pipeline stages to HTTP status codes.
func statusFor(err error) int {
	switch pipeline.StageOf(err) {
	case pipeline.StageValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Detail: detail})
}
