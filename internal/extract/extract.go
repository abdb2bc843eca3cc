// Package extract converts downloaded file bytes into plain text.
//
// Extract never fails: an unreadable file yields a sentinel string such as
// "[EXTRACTION ERROR: ...]" so that keyword extraction and scoring can treat
// every document as text.
package extract

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"

	"github.com/mfenderov/protokb/pkg/models"
)

// Sentinel strings embedded in extracted text.
const (
	Empty          = "[empty]"
	PDFPlaceholder = "[PDF content: text extraction is not available for this document]"
	Unsupported    = "[unsupported file type]"
)

// ErrorText formats an extraction failure as in-band text.
func ErrorText(err error) string {
	return fmt.Sprintf("[EXTRACTION ERROR: %v]", err)
}

// Options controls optional extraction behaviour.
type Options struct {
	// PDFText enables real PDF text extraction instead of the placeholder.
	PDFText bool
}

// Extractor dispatches on the declared type of a document.
type Extractor struct {
	opts Options
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Extract returns the text content of data. Any error or panic raised while
// parsing is converted to ErrorText.
func (e *Extractor) Extract(data []byte, typ models.DeclaredType) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("extractor panicked", "type", typ, "panic", r)
			text = ErrorText(fmt.Errorf("%v", r))
		}
	}()

	out, err := e.dispatch(data, typ)
	if err != nil {
		slog.Warn("extraction failed", "type", typ, "error", err)
		return ErrorText(err)
	}
	return out
}

func (e *Extractor) dispatch(data []byte, typ models.DeclaredType) (string, error) {
	switch typ {
	case models.TypeSpreadsheet, models.TypeGoogleSheet:
		return nonEmpty(spreadsheetText(data))
	case models.TypeSpreadsheetLegacy:
		return nonEmpty(legacySpreadsheetText(data))
	case models.TypeWordDoc, models.TypeWordDocLegacy:
		return nonEmpty(docxText(data))
	case models.TypePlainText:
		return plainText(data), nil
	case models.TypeGoogleDoc:
		return nonEmpty(htmlText(data))
	case models.TypePDF:
		if !e.opts.PDFText {
			return PDFPlaceholder, nil
		}
		return nonEmpty(pdfText(data))
	default:
		return e.sniff(data)
	}
}

// sniff runs the extractor matching the detected container format, falling
// back to the unsupported placeholder.
func (e *Extractor) sniff(data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return Unsupported, nil
	}

	typ := models.DeclaredTypeFromName("file." + kind.Extension)
	if typ == models.TypeUnknown {
		return Unsupported, nil
	}
	slog.Debug("sniffed content type", "mime", kind.MIME.Value, "type", typ)
	return e.dispatch(data, typ)
}

func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

func nonEmpty(text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return Empty, nil
	}
	return text, nil
}
