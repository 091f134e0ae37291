package extraction

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedFormat is returned for files no converter handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed wraps converter failures.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEmptyInput is returned when there are no bytes to extract from.
	ErrEmptyInput = errors.New("empty document")
)

// Format identifies a converter.
type Format string

const (
	FormatPDF    Format = "pdf"
	FormatOffice Format = "office"
	FormatHTML   Format = "html"
	FormatText   Format = "text"
)

// Extractor converts a document to plain text.
type Extractor interface {
	Extract(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// converter extracts text from one format. mimeType is the normalized
// type for the file, used by converters that dispatch internally.
type converter func(ctx context.Context, mimeType string, data []byte) (string, error)

var extensionFormats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatOffice,
	".doc":  FormatOffice,
	".odt":  FormatOffice,
	".rtf":  FormatOffice,
	".html": FormatHTML,
	".htm":  FormatHTML,
	".txt":  FormatText,
	".md":   FormatText,
	".csv":  FormatText,
}

var extensionMIME = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

var mimeFormats = map[string]Format{
	"application/pdf":                         FormatPDF,
	"application/msword":                      FormatOffice,
	"application/vnd.oasis.opendocument.text": FormatOffice,
	"application/rtf":                         FormatOffice,
	"text/rtf":                                FormatOffice,
	"text/html":                               FormatHTML,
	"application/xhtml+xml":                   FormatHTML,
	"text/plain":                              FormatText,
	"text/markdown":                           FormatText,
	"text/csv":                                FormatText,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatOffice,
}

// Detect resolves the format and normalized MIME type of an upload.
// The extension wins over the declared content type.
func Detect(filename, contentType string) (Format, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensionFormats[ext]; ok {
		return f, extensionMIME[ext], nil
	}

	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			mt = strings.ToLower(mt)
			if f, ok := mimeFormats[mt]; ok {
				return f, mt, nil
			}
		}
	}

	return "", "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, filename, contentType)
}

// Registry is the default Extractor.
type Registry struct {
	logger     *zap.Logger
	converters map[Format]converter
}

// New returns a Registry with every built-in converter.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger}
	r.converters = map[Format]converter{
		FormatPDF:    r.extractPDF,
		FormatOffice: extractOffice,
		FormatHTML:   extractHTML,
		FormatText:   extractText,
	}
	return r
}

// Extract converts data to text based on filename and content type.
func (r *Registry) Extract(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}
	format, mimeType, err := Detect(filename, contentType)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	convert, ok := r.converters[format]
	if !ok {
		return "", fmt.Errorf("%w: no converter for %s", ErrUnsupportedFormat, format)
	}

	text, err := convert(ctx, mimeType, data)
	if err != nil {
		r.logger.Warn("extraction failed",
			zap.String("filename", filename),
			zap.String("format", string(format)),
			zap.Int("size", len(data)),
			zap.Error(err))
		if errors.Is(err, ErrUnsupportedFormat) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filename, err)
	}

	r.logger.Debug("extracted text",
		zap.String("filename", filename),
		zap.String("format", string(format)),
		zap.Int("text_length", len(text)))
	return text, nil
}

var _ Extractor = (*Registry)(nil)
