package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tp12121212/sit-builder/internal/app"
	"github.com/tp12121212/sit-builder/internal/config"
	"github.com/tp12121212/sit-builder/pkg/apierror"
	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/domain/scan"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
	"github.com/tp12121212/sit-builder/pkg/logger"
	"github.com/tp12121212/sit-builder/pkg/pagination"
	"github.com/tp12121212/sit-builder/pkg/validator"
)

// credentialHeader carries the delegated credential for bridged scans. It is
// read once at admission and handed straight to the job payload, never stored
// or logged.
const credentialHeader = "X-Delegated-Credential"

// fileMtimeHeader lets uploaders preserve the original file timestamp on a
// multipart part, keeping the working-set identity stable across re-uploads.
const fileMtimeHeader = "X-File-Mtime"

// multipartMemory is the in-memory threshold for multipart parsing; larger
// parts spill to temp files.
const multipartMemory = 32 << 20

// ScanHandler handles scan HTTP requests.
type ScanHandler struct {
	service   *app.ScanService
	validator *validator.Validator
	storage   *config.StorageConfig
	logger    *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(svc *app.ScanService, v *validator.Validator, storage *config.StorageConfig, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service:   svc,
		validator: v,
		storage:   storage,
		logger:    log,
	}
}

// FileResponse represents one admitted file in API responses.
type FileResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	Module        string `json:"module,omitempty"`
	OCRPerformed  *bool  `json:"ocr_performed,omitempty"`
	Done          bool   `json:"done"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ScanResponse represents a scan in API responses.
type ScanResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Backend      string         `json:"backend"`
	Status       string         `json:"status"`
	Category     string         `json:"category"`
	PreserveCase bool           `json:"preserve_case"`
	ForceOCR     bool           `json:"force_ocr"`
	Principal    string         `json:"principal,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Files        []FileResponse `json:"files,omitempty"`
	FilesTotal   int            `json:"files_total"`
	Progress     scan.Progress  `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`

	ExtractionSeconds float64 `json:"extraction_seconds,omitempty"`
	AnalysisSeconds   float64 `json:"analysis_seconds,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toScanResponse(s *scan.Scan, includeFiles bool) ScanResponse {
	resp := ScanResponse{
		ID:           s.ID.String(),
		Name:         s.Name,
		Backend:      s.Backend.String(),
		Status:       s.Status.String(),
		Category:     s.Category,
		PreserveCase: s.PreserveCase,
		ForceOCR:     s.ForceOCR,
		Principal:    s.Principal,
		Organization: s.Organization,
		FilesTotal:   len(s.Files),
		Progress:     s.Progress,
		ErrorMessage: s.ErrorMessage,

		ExtractionSeconds: s.ExtractionSeconds,
		AnalysisSeconds:   s.AnalysisSeconds,

		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CompletedAt: s.CompletedAt,
	}

	if includeFiles {
		resp.Files = make([]FileResponse, 0, len(s.Files))
		for i := range s.Files {
			f := &s.Files[i]
			resp.Files = append(resp.Files, FileResponse{
				ID:            f.ID.String(),
				Name:          f.Name,
				Size:          f.Size,
				Module:        f.Module,
				OCRPerformed:  f.OCRPerformed,
				Done:          f.Done,
				FailureReason: f.FailureReason,
			})
		}
	}

	return resp
}

// admitScanRequest carries the non-file multipart fields of an admission
// request. The delegated credential arrives in a header, not a form field, so
// it never lands in multipart temp files.
type admitScanRequest struct {
	Name         string `validate:"max=200"`
	Backend      string `validate:"required,scan_backend"`
	Category     string `validate:"required,sit_category"`
	Principal    string `validate:"max=200"`
	Organization string `validate:"max=200"`
}

// AdmitScanResponse represents the response from admitting a scan.
type AdmitScanResponse struct {
	ScanID     string `json:"scan_id"`
	Status     string `json:"status"`
	FilesCount int    `json:"files_count"`
}

// Admit handles POST /api/v1/scans. The request is multipart/form-data with
// one or more "files" parts plus the scan parameters as form fields.
func (h *ScanHandler) Admit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apierror.BadRequest("Invalid multipart request body").WriteJSON(w)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := admitScanRequest{
		Name:         r.FormValue("name"),
		Backend:      r.FormValue("backend"),
		Category:     r.FormValue("category"),
		Principal:    r.FormValue("principal"),
		Organization: r.FormValue("organization"),
	}
	if req.Backend == "" {
		req.Backend = scan.BackendClassic.String()
	}
	if err := h.validator.Validate(req); err != nil {
		apierror.ValidationFailed("Invalid scan parameters", err).WriteJSON(w)
		return
	}

	files, apiErr := h.collectFiles(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	result, err := h.service.Admit(r.Context(), app.AdmitInput{
		Name:         req.Name,
		Backend:      scan.Backend(req.Backend),
		Category:     req.Category,
		PreserveCase: formBool(r, "preserve_case"),
		ForceOCR:     formBool(r, "force_ocr"),
		Principal:    req.Principal,
		Credential:   r.Header.Get(credentialHeader),
		Organization: req.Organization,
		Files:        files,
	})
	if err != nil {
		h.logger.Error("failed to admit scan", "error", err)
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(AdmitScanResponse{
		ScanID:     result.ScanID.String(),
		Status:     result.Status.String(),
		FilesCount: result.FilesCount,
	})
}

// collectFiles reads the multipart file parts into source files, preserving
// path-qualified names from nested uploads.
func (h *ScanHandler) collectFiles(r *http.Request) ([]scan.SourceFile, *apierror.Error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		return nil, apierror.BadRequest("At least one file part is required")
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) > h.storage.MaxFilesPerScan {
		return nil, apierror.BadRequest("Too many files in one scan")
	}

	files := make([]scan.SourceFile, 0, len(headers))
	for _, fh := range headers {
		name, ok := sanitizeUploadName(fh.Filename)
		if !ok {
			return nil, apierror.BadRequest("Invalid file name: " + fh.Filename)
		}
		if fh.Size > h.storage.MaxFileSize {
			return nil, apierror.BadRequest("File too large: " + name)
		}

		part, err := fh.Open()
		if err != nil {
			return nil, apierror.BadRequest("Unreadable file part: " + name)
		}
		data, err := io.ReadAll(io.LimitReader(part, h.storage.MaxFileSize+1))
		part.Close()
		if err != nil {
			return nil, apierror.BadRequest("Unreadable file part: " + name)
		}
		if int64(len(data)) > h.storage.MaxFileSize {
			return nil, apierror.BadRequest("File too large: " + name)
		}

		modTime := time.Now()
		if raw := fh.Header.Get(fileMtimeHeader); raw != "" {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				modTime = parsed
			}
		}

		files = append(files, scan.SourceFile{
			Name:    name,
			Data:    data,
			Size:    int64(len(data)),
			ModTime: modTime,
		})
	}
	return files, nil
}

// sanitizeUploadName normalizes a path-qualified upload name and rejects
// anything escaping the upload root.
func sanitizeUploadName(name string) (string, bool) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

func formBool(r *http.Request, field string) bool {
	v := strings.ToLower(r.FormValue(field))
	return v == "true" || v == "1"
}

// List handles GET /api/v1/scans.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter scan.Filter
	if s := query.Get("status"); s != "" {
		status := scan.Status(strings.ToUpper(s))
		if !status.IsValid() {
			apierror.BadRequest("Invalid status filter: " + s).WriteJSON(w)
			return
		}
		filter.Status = &status
	}
	if b := query.Get("backend"); b != "" {
		backend := scan.Backend(strings.ToLower(b))
		if !backend.IsValid() {
			apierror.BadRequest("Invalid backend filter: " + b).WriteJSON(w)
			return
		}
		filter.Backend = &backend
	}

	page := pagination.New(
		parseQueryInt(query.Get("page"), 1),
		parseQueryInt(query.Get("per_page"), pagination.DefaultPerPage),
	)

	result, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		h.logger.Error("failed to list scans", "error", err)
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	data := make([]ScanResponse, 0, len(result.Items))
	for _, s := range result.Items {
		data = append(data, toScanResponse(s, false))
	}

	resp := ListResponse[ScanResponse]{
		Data:       data,
		Total:      int64(result.Total),
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
		Links:      NewPaginationLinks(r, result.Page, result.PerPage, result.TotalPages),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Get handles GET /api/v1/scans/{id}.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, apiErr := scanIDFromRequest(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	sc, err := h.service.Get(r.Context(), id)
	if err != nil {
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toScanResponse(sc, true))
}

// Progress handles GET /api/v1/scans/{id}/progress.
func (h *ScanHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, apiErr := scanIDFromRequest(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	view, err := h.service.Progress(r.Context(), id)
	if err != nil {
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

// Candidates handles GET /api/v1/scans/{id}/candidates.
func (h *ScanHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, apiErr := scanIDFromRequest(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	query := r.URL.Query()
	var filter app.CandidateFilter
	if t := query.Get("type"); t != "" {
		ct := candidate.Type(strings.ToUpper(t))
		switch ct {
		case candidate.TypePattern, candidate.TypeKeyword, candidate.TypeEntity:
			filter.Type = &ct
		default:
			apierror.BadRequest("Invalid candidate type filter: " + t).WriteJSON(w)
			return
		}
	}
	filter.MinScore = parseQueryFloatPtr(query.Get("min_score"))

	page := pagination.New(
		parseQueryInt(query.Get("page"), 1),
		parseQueryInt(query.Get("per_page"), pagination.DefaultPerPage),
	)

	result, err := h.service.Candidates(r.Context(), id, filter, page)
	if err != nil {
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	resp := ListResponse[candidate.Aggregated]{
		Data:       result.Items,
		Total:      int64(result.Total),
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalPages: result.TotalPages,
		Links:      NewPaginationLinks(r, result.Page, result.PerPage, result.TotalPages),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Cancel handles POST /api/v1/scans/{id}/cancel. Cancelling a terminal scan
// is acknowledged without effect.
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, apiErr := scanIDFromRequest(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.logger.Error("failed to cancel scan", "scan_id", id, "error", err)
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "cancellation_requested"})
}

// Delete handles DELETE /api/v1/scans/{id}.
func (h *ScanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, apiErr := scanIDFromRequest(r)
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete scan", "scan_id", id, "error", err)
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func scanIDFromRequest(r *http.Request) (shared.ID, *apierror.Error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return shared.ID{}, apierror.BadRequest("scan id is required")
	}
	id, err := shared.IDFromString(raw)
	if err != nil {
		return shared.ID{}, apierror.BadRequest("Invalid scan id")
	}
	return id, nil
}
