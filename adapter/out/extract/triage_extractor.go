// Package extract turns uploaded files into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

const mimePDF = "application/pdf"

var _ out.TextExtractor = (*Extractor)(nil)

// Extractor reads the text layer of PDFs and decodes everything else as text,
// trying UTF-8 first and Latin-1 second.
type Extractor struct {
	log zerolog.Logger
}

// New creates an extractor.
func New(log zerolog.Logger) *Extractor {
	return &Extractor{log: log.With().Str("component", "extractor").Logger()}
}

// Extract returns the text of upload or an error wrapping domain.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, upload domain.Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	if len(upload.Data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrExtractionFailed, displayName(upload))
	}

	var (
		text string
		err  error
	)
	kind := DetectKind(upload)
	switch kind {
	case mimePDF:
		text, err = extractPDF(upload.Data)
	default:
		text = DecodeText(upload.Data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, displayName(upload), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s has no text content", domain.ErrExtractionFailed, displayName(upload))
	}

	e.log.Debug().
		Str("source", displayName(upload)).
		Str("kind", kind).
		Int("bytes", len(upload.Data)).
		Int("chars", utf8.RuneCountInString(text)).
		Msg("text extracted")
	return text, nil
}

// DetectKind returns "application/pdf" for PDFs (by extension, declared type or content)
// and the sniffed media type otherwise.
func DetectKind(upload domain.Upload) string {
	if strings.EqualFold(filepath.Ext(upload.Filename), ".pdf") {
		return mimePDF
	}
	if strings.HasPrefix(strings.ToLower(upload.MediaType), mimePDF) {
		return mimePDF
	}
	detected := mimetype.Detect(upload.Data)
	if detected.Is(mimePDF) {
		return mimePDF
	}
	return detected.String()
}

// DecodeText decodes UTF-8 when valid and falls back to ISO-8859-1, dropping any BOM.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(decoded)
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

func displayName(upload domain.Upload) string {
	if upload.Filename == "" {
		return "file"
	}
	return upload.Filename
}
