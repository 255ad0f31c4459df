// Package extractor reads PDF, plain-text and markdown files into raw text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"unihelp/internal/domain"
	"unihelp/internal/logging"
	"unihelp/internal/metrics"
)

// SupportedExtensions lists the file types the extractor understands.
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// Extractor turns files into text. It holds no state besides its collaborators.
type Extractor struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an extractor. Both arguments may be nil.
func New(logger *zap.Logger, m *metrics.Metrics) *Extractor {
	return &Extractor{
		logger:  logging.Or(logger).With(zap.String("component", "extractor")),
		metrics: m,
	}
}

// Extract returns the text of a single file.
// Text and markdown files must be UTF-8 and are returned verbatim; PDF
// pages are joined by newlines and the result is trimmed.
func (e *Extractor) Extract(path string) (string, error) {
	doc, err := e.extract(path, false)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// ExtractWithMetadata returns the text along with title, author, page count
// and type. Title defaults to the file stem.
func (e *Extractor) ExtractWithMetadata(path string) (domain.Document, error) {
	return e.extract(path, true)
}

// DirReport is the outcome of a directory extraction.
type DirReport struct {
	// Docs maps file name to extracted text.
	Docs map[string]string
	// Failed lists the paths that could not be extracted.
	Failed []string
}

// ExtractDir extracts every supported file below dir, recursively, keyed by
// file name. A file that fails is logged and skipped.
func (e *Extractor) ExtractDir(ctx context.Context, dir string) (map[string]string, error) {
	report, err := e.ExtractDirReport(ctx, dir)
	if err != nil {
		return nil, err
	}
	return report.Docs, nil
}

// ExtractDirReport is ExtractDir that also reports which files failed.
func (e *Extractor) ExtractDirReport(ctx context.Context, dir string) (DirReport, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DirReport{}, fmt.Errorf("%w: directory %s", domain.ErrNotFound, dir)
		}
		return DirReport{}, err
	}
	if !info.IsDir() {
		return DirReport{}, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, dir)
	}

	report := DirReport{Docs: make(map[string]string)}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			e.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		text, err := e.Extract(path)
		if err != nil {
			report.Failed = append(report.Failed, path)
			e.metrics.Extracted("failed")
			e.logger.Warn("failed to extract", zap.String("file", d.Name()), zap.Error(err))
			return nil
		}
		if _, dup := report.Docs[d.Name()]; dup {
			e.logger.Warn("duplicate file name, keeping the last one", zap.String("file", d.Name()), zap.String("path", path))
		}
		report.Docs[d.Name()] = text
		e.metrics.Extracted("ok")
		e.logger.Debug("extracted", zap.String("file", d.Name()), zap.Int("chars", len(text)))
		return nil
	})
	if err != nil {
		return DirReport{}, err
	}
	return report, nil
}

// Supported reports whether the path has a recognised extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

func (e *Extractor) extract(path string, withMeta bool) (domain.Document, error) {
	doc := domain.Document{Name: filepath.Base(path), Path: path}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, fmt.Errorf("%w: file %s", domain.ErrNotFound, path)
		}
		return doc, err
	}
	doc.Meta.Title = strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, fmt.Errorf("%w: read %s: %v", domain.ErrExtractionFailure, path, err)
		}
		if !utf8.Valid(data) {
			return doc, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtractionFailure, path)
		}
		doc.Text = string(data)
		if withMeta {
			doc.Text = strings.TrimSpace(doc.Text)
		}
		doc.Meta.Type = "text"
		return doc, nil
	case ".pdf":
		text, meta, err := readPDF(path)
		if err != nil {
			return doc, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailure, path, err)
		}
		doc.Text = text
		doc.Meta.Type = "pdf"
		doc.Meta.Pages = meta.Pages
		if meta.Title != "" {
			doc.Meta.Title = meta.Title
		}
		doc.Meta.Author = meta.Author
		return doc, nil
	default:
		return doc, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// readPDF concatenates the plain text of every page. The parser panics on
// some malformed inputs, so panics are turned into errors.
func readPDF(path string) (text string, meta domain.DocumentMeta, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", meta, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	meta.Pages = r.NumPage()
	var b strings.Builder
	for i := 1; i <= meta.Pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", meta, fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	info := r.Trailer().Key("Info")
	if !info.IsNull() {
		meta.Title = strings.TrimSpace(info.Key("Title").Text())
		meta.Author = strings.TrimSpace(info.Key("Author").Text())
	}
	return strings.TrimSpace(b.String()), meta, nil
}
