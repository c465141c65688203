package endpoints

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/extract"
	"github.com/pyqvault/pyqvault/internal/jobs"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// UploadResponse is the response for a successful upload.
type UploadResponse struct {
	Book     *store.Book      `json:"book"`
	Metadata extract.Metadata `json:"metadata"`
	Queued   bool             `json:"queued"`
}

// DetectResponse is the response for a detect-only upload.
type DetectResponse struct {
	Metadata    extract.Metadata   `json:"metadata"`
	ContentHash string             `json:"contentHash"`
	Duplicate   *extract.Duplicate `json:"duplicate,omitempty"`
}

// DuplicateResponse is the 409 response when an upload matches an
// existing book.
type DuplicateResponse struct {
	Error     string             `json:"error"`
	Duplicate *extract.Duplicate `json:"duplicate"`
}

// UploadBookEndpoint handles POST /api/books/upload with a multipart
// PDF upload.
type UploadBookEndpoint struct{}

var _ api.Endpoint = (*UploadBookEndpoint)(nil)

func (e *UploadBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/upload", e.handler
}

func (e *UploadBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload exam paper
//	@Description	Upload a PDF exam paper, detect its metadata and queue extraction
//	@Tags			books
//	@Accept			mpfd
//	@Produce		json
//	@Param			file				formData	file	true	"PDF file to upload"
//	@Param			title				formData	string	false	"Title override"
//	@Param			description			formData	string	false	"Description override"
//	@Param			exam_name			formData	string	false	"Exam name override"
//	@Param			exam_year			formData	int		false	"Exam year override"
//	@Param			subject				formData	string	false	"Subject override"
//	@Param			exam_type			formData	string	false	"Exam type override (full_length or subject_wise)"
//	@Param			pyq_type			formData	string	false	"Paper type override"
//	@Param			expected_questions	formData	int		false	"Expected question count override"
//	@Param			detect_only			formData	bool	false	"Only detect metadata, do not create the book"
//	@Param			preview_mode		formData	bool	false	"Split into page images without extracting"
//	@Param			auto_process		formData	bool	false	"Start extraction after upload (default true)"
//	@Success		201					{object}	UploadResponse
//	@Success		200					{object}	DetectResponse
//	@Failure		400					{object}	ErrorResponse
//	@Failure		409					{object}	DuplicateResponse
//	@Failure		500					{object}	ErrorResponse
//	@Failure		503					{object}	ErrorResponse
//	@Router			/api/books/upload [post]
func (e *UploadBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 100 << 20 // 100MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", header.Filename))
		return
	}

	pdf, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	if len(pdf) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil || svcs.Store == nil || svcs.Blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}
	log := svcs.Logger

	contentHash := extract.HashPDF(pdf)
	detectOnly := r.FormValue("detect_only") == "true"
	previewMode := r.FormValue("preview_mode") == "true"
	autoProcess := r.FormValue("auto_process") != "false"

	// Render the first page for metadata detection. A render failure is
	// not fatal: the inferencer falls back to the filename.
	dpi := svcs.Config.Get().Extraction.RenderDPI
	firstPage, err := extract.RenderFirstPage(pdf, dpi)
	if err != nil && log != nil {
		log.Warn("failed to render first page", "file", header.Filename, "error", err)
	}

	meta := svcs.Inferencer.Infer(r.Context(), header.Filename, firstPage)
	applyMetadataOverrides(&meta, r)

	dup, err := svcs.Detector.Check(r.Context(), contentHash, meta)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if detectOnly {
		writeJSON(w, http.StatusOK, DetectResponse{
			Metadata:    meta,
			ContentHash: contentHash,
			Duplicate:   dup,
		})
		return
	}

	if dup != nil {
		writeJSON(w, http.StatusConflict, DuplicateResponse{
			Error:     fmt.Sprintf("duplicate upload: matches existing book by %s", dup.Reason),
			Duplicate: dup,
		})
		return
	}

	book := &store.Book{
		ContentHash:       contentHash,
		Title:             meta.Title,
		Description:       meta.Description,
		FileName:          header.Filename,
		FileSize:          int64(len(pdf)),
		ExamName:          meta.ExamName,
		ExamYear:          meta.ExamYear,
		Subject:           meta.Subject,
		ExamType:          meta.ExamType,
		PYQType:           meta.PYQType,
		UploadStatus:      store.StatusPending,
		ExpectedQuestions: formInt(r, "expected_questions"),
	}
	if err := svcs.Store.CreateBook(r.Context(), book); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create book: %v", err))
		return
	}

	if err := svcs.Blobs.Put(r.Context(), blob.BookPDFKey(book.ID), pdf); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store PDF: %v", err))
		return
	}

	queued := false
	switch {
	case previewMode:
		queued = submitPreview(r, book.ID)
	case autoProcess:
		queued = submitProcessing(r, book.ID)
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Book: book, Metadata: meta, Queued: queued})
}

// applyMetadataOverrides lets explicit form fields win over detection.
func applyMetadataOverrides(meta *extract.Metadata, r *http.Request) {
	if v := r.FormValue("title"); v != "" {
		meta.Title = v
	}
	if v := r.FormValue("description"); v != "" {
		meta.Description = v
	}
	if v := r.FormValue("exam_name"); v != "" {
		meta.ExamName = v
	}
	if v := formInt(r, "exam_year"); v > 0 {
		meta.ExamYear = v
	}
	if v := r.FormValue("subject"); v != "" {
		meta.Subject = v
	}
	if v := r.FormValue("exam_type"); v == store.ExamTypeFullLength || v == store.ExamTypeSubjectWise {
		meta.ExamType = v
	}
	if v := r.FormValue("pyq_type"); v != "" {
		meta.PYQType = v
	}
}

func formInt(r *http.Request, field string) int {
	n, _ := strconv.Atoi(r.FormValue(field))
	return n
}

// submitProcessing queues a full extraction run. A full queue leaves
// the book pending; it can be started later via the retry endpoint.
func submitProcessing(r *http.Request, bookID string) bool {
	svcs := svcctx.ServicesFrom(r.Context())
	err := svcs.Pool.Submit(jobs.Job{
		Name: "process_book:" + bookID,
		Run: func(ctx context.Context) {
			_ = svcs.Orchestrator.ProcessBook(ctx, bookID)
		},
	})
	if err != nil {
		if svcs.Logger != nil {
			svcs.Logger.Warn("failed to queue extraction", "book_id", bookID, "error", err)
		}
		return false
	}
	return true
}

// submitPreview queues a split-only run that renders page images
// without extracting questions.
func submitPreview(r *http.Request, bookID string) bool {
	svcs := svcctx.ServicesFrom(r.Context())
	err := svcs.Pool.Submit(jobs.Job{
		Name: "preview_book:" + bookID,
		Run: func(ctx context.Context) {
			_ = svcs.Orchestrator.PreviewBook(ctx, bookID)
		},
	})
	if err != nil {
		if svcs.Logger != nil {
			svcs.Logger.Warn("failed to queue preview", "book_id", bookID, "error", err)
		}
		return false
	}
	return true
}

func (e *UploadBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		detectOnly bool
		preview    bool
		noProcess  bool
		examName   string
		examYear   int
		subject    string
	)
	cmd := &cobra.Command{
		Use:   "upload <pdf>",
		Short: "Upload an exam paper PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			fields := map[string]string{}
			if detectOnly {
				fields["detect_only"] = "true"
			}
			if preview {
				fields["preview_mode"] = "true"
			}
			if noProcess {
				fields["auto_process"] = "false"
			}
			if examName != "" {
				fields["exam_name"] = examName
			}
			if examYear > 0 {
				fields["exam_year"] = strconv.Itoa(examYear)
			}
			if subject != "" {
				fields["subject"] = subject
			}

			var resp map[string]any
			if err := client.PostFile(cmd.Context(), "/api/books/upload", "file", args[0], fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&detectOnly, "detect-only", false, "Only detect metadata, do not create the book")
	cmd.Flags().BoolVar(&preview, "preview", false, "Split into page images without extracting")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "Do not start extraction after upload")
	cmd.Flags().StringVar(&examName, "exam-name", "", "Exam name override")
	cmd.Flags().IntVar(&examYear, "exam-year", 0, "Exam year override")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject override")
	return cmd
}
