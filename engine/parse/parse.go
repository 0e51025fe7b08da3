// Package parse extracts plain UTF-8 text from uploaded documents.
package parse

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/WessleyAI/ragdesk/engine/domain"
)

// UnsupportedTypeError is returned for any type outside pdf, docx, txt and md.
type UnsupportedTypeError struct {
	Type domain.DocType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("parse: unsupported type %q", string(e.Type))
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == domain.ErrUnsupportedType }

// NotFoundError is returned when the source file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("parse: %s: file not found", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == domain.ErrNotFound }

// ParseError wraps an underlying extraction failure.
type ParseError struct {
	Path string
	Type domain.DocType
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s (%s): %v", e.Path, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == domain.ErrParse }

// pdfLicensed selects unipdf for PDF extraction. Without a key, PDFs are
// read with langchaingo's loader.
var pdfLicensed atomic.Bool

// SetPDFLicense registers a UniDoc metered key. An empty key keeps the
// unlicensed PDF reader.
func SetPDFLicense(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("parse: pdf license: %w", err)
	}
	pdfLicensed.Store(true)
	return nil
}

// Parser extracts text from documents on local storage. It has no side
// effects on the source file.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Extract returns the plain text of the document at path.
func (p *Parser) Extract(path string, t domain.DocType) (string, error) {
	switch t {
	case domain.DocPDF, domain.DocDOCX, domain.DocTXT, domain.DocMD:
	default:
		return "", &UnsupportedTypeError{Type: t}
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: path}
		}
		return "", &ParseError{Path: path, Type: t, Err: err}
	}

	var (
		text string
		err  error
	)
	switch t {
	case domain.DocPDF:
		text, err = extractPDF(path)
	case domain.DocDOCX:
		text, err = extractDOCX(path)
	default:
		text, err = extractPlain(path)
	}
	if err != nil {
		return "", &ParseError{Path: path, Type: t, Err: err}
	}

	p.logger.Debug("document parsed", "path", path, "type", t, "chars", len(text))
	return text, nil
}

func extractPlain(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

// extractPDF joins per-page text with blank lines. Pages without a text
// layer contribute an empty string.
func extractPDF(path string) (string, error) {
	if pdfLicensed.Load() {
		return extractPDFUnidoc(path)
	}
	return extractPDFLoader(path)
}

func extractPDFLoader(path string) (text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	// The underlying reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()
	docs, err := documentloaders.NewPDF(f, info.Size()).Load(context.Background())
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	pages := make([]string, len(docs))
	for i, d := range docs {
		pages[i] = d.PageContent
	}
	return strings.Join(pages, "\n\n"), nil
}

func extractPDFUnidoc(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	n, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("count pages: %w", err)
	}

	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n\n"), nil
}

type docxBody struct {
	Paragraphs []docxParagraph `xml:"body>p"`
}

type docxParagraph struct {
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

// extractDOCX reads word/document.xml and joins paragraph text with newlines.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}

		var doc docxBody
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}
		paras := make([]string, 0, len(doc.Paragraphs))
		for _, p := range doc.Paragraphs {
			var sb strings.Builder
			for _, r := range p.Runs {
				for _, t := range r.Text {
					sb.WriteString(t)
				}
			}
			paras = append(paras, sb.String())
		}
		return strings.Join(paras, "\n"), nil
	}
	return "", errors.New("docx: word/document.xml missing")
}
