package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Splitter renders a book's PDF into per-page PNG images and seeds the
// pending page rows. Splitting is all or nothing: any page failure
// fails the whole split so extraction never runs on a partial book.
type Splitter struct {
	store       Store
	blobs       blob.Store
	dpi         int
	concurrency int
	log         *slog.Logger
}

// NewSplitter creates a splitter.
func NewSplitter(st Store, blobs blob.Store, dpi, concurrency int, log *slog.Logger) *Splitter {
	if dpi <= 0 {
		dpi = 300
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Splitter{
		store:       st,
		blobs:       blobs,
		dpi:         dpi,
		concurrency: concurrency,
		log:         log.With("component", "splitter"),
	}
}

// Split renders every page of the PDF into blob storage, records the
// page count and inserts pending page rows. plan maps the discovered
// page count to the section layout the stubs are seeded from.
func (s *Splitter) Split(ctx context.Context, book *store.Book, pdf []byte, plan func(pageCount int) []SectionPlan) (int, error) {
	pdfPath, cleanup, err := writeTempPDF(pdf)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	pageCount, err := CountPages(pdfPath)
	if err != nil {
		return 0, err
	}
	if pageCount == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}

	s.log.Info("splitting PDF", "book_id", book.ID, "pages", pageCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for page := 1; page <= pageCount; page++ {
		g.Go(func() error {
			img, err := renderPage(pdfPath, page, s.dpi)
			if err != nil {
				return fmt.Errorf("failed to render page %d: %w", page, err)
			}
			if err := s.blobs.Put(gctx, blob.PageImageKey(book.ID, page), img); err != nil {
				return fmt.Errorf("failed to store page %d: %w", page, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.store.SetBookPageCount(ctx, book.ID, pageCount); err != nil {
		return 0, err
	}
	if err := s.store.InsertPageStubs(ctx, book.ID, PageStubs(plan(pageCount), pageCount)); err != nil {
		return 0, err
	}

	return pageCount, nil
}

// CountPages returns the number of pages in a PDF file.
func CountPages(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// RenderFirstPage renders page 1 of a PDF held in memory, used for
// metadata detection before any book record exists.
func RenderFirstPage(pdf []byte, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = 300
	}
	pdfPath, cleanup, err := writeTempPDF(pdf)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return renderPage(pdfPath, 1, dpi)
}

// writeTempPDF persists PDF bytes to a temp file for pdftoppm.
func writeTempPDF(pdf []byte) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "pyqvault-pdf-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	pdfPath := filepath.Join(tmpDir, "source.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}
	return pdfPath, cleanup, nil
}

// renderPage renders a single page from a PDF using pdftoppm (poppler-utils).
func renderPage(pdfPath string, page, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "pyqvault-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -png: output PNG format
	// -f N / -l N: single page range
	// -r: resolution in DPI
	// -singlefile: don't add page number suffix
	pageStr := fmt.Sprintf("%d", page)
	cmd := exec.Command("pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
