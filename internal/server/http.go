// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/facturio/invoice-pipeline/internal/archive"
	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/entity"
	"github.com/facturio/invoice-pipeline/internal/export"
	"github.com/facturio/invoice-pipeline/internal/pipeline"
	"github.com/facturio/invoice-pipeline/internal/repository"
)

// uploadFormKey is the multipart field holding the zip.
const uploadFormKey = "archive"

// Server handles archive uploads. The repository is optional; when nil,
// results are returned to the caller and not persisted.
type Server struct {
	processor *pipeline.Processor
	exporter  *export.Service
	repo      repository.InvoiceRepository
	maxUpload int64
	logger    *slog.Logger
}

func New(processor *pipeline.Processor, exporter *export.Service, repo repository.InvoiceRepository, maxUpload int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = 300 << 20
	}
	return &Server{
		processor: processor,
		exporter:  exporter,
		repo:      repo,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Handler wires the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart zip upload (or a raw zip body) and runs
// the whole job synchronously. Per-file extraction failures still return 200:
// they live inside the JobResult. Only archive-level rejection is a 400.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	content, err := s.readArchive(w, r)
	if err != nil {
		s.logger.Warn("upload read failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.processor.ProcessArchive(ctx, content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, archive.ErrArchiveTooLarge) ||
			errors.Is(err, archive.ErrArchiveCorrupt) ||
			errors.Is(err, archive.ErrUnsafeMemberPath) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	if s.repo != nil {
		if err := s.repo.SaveJobResult(ctx, result); err != nil {
			// Persistence is best-effort for the synchronous surface; the
			// caller still gets their result.
			s.logger.Error("persist failed", "job_id", result.JobID, "error", err)
		}
	}

	s.logger.Info("upload handled",
		"job_id", result.JobID,
		"total_processed", result.TotalProcessed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if wantsXLSX(r) {
		s.writeWorkbook(w, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readArchive pulls zip bytes from either a multipart form (field "archive")
// or a raw application/zip body, capped at maxUpload.
func (s *Server) readArchive(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		f, _, err := r.FormFile(uploadFormKey)
		if err != nil {
			return nil, common.NewAppError("UPLOAD_ERROR", "multipart field 'archive' is required", err)
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, common.WrapError(err, "read upload")
		}
		return data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, common.WrapError(err, "read upload")
	}
	return data, nil
}

func (s *Server) writeWorkbook(w http.ResponseWriter, result *entity.JobResult) {
	book, err := s.exporter.BuildWorkbook(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "workbook build failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(book)
}

func wantsXLSX(r *http.Request) bool {
	if r.URL.Query().Get("format") == "xlsx" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "spreadsheetml")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
