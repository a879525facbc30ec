package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

var htmlTagPattern = regexp.MustCompile(`<[^<>]+?>`)

// TextProcessor prepares message text for matching and for the reasoner
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// StripHTML removes markup tags from a message body, leaving the text
// content. Mail APIs frequently return HTML bodies even when a text part
// exists.
func (tp *TextProcessor) StripHTML(body string) string {
	if !strings.ContainsRune(body, '<') {
		return body
	}
	return htmlTagPattern.ReplaceAllString(body, "")
}

// Fold case-folds text for caseless matching. Unicode folding handles
// keywords beyond ASCII, e.g. accented French terms. A fresh Caser is built
// per call since a Caser must not be shared between goroutines.
func (tp *TextProcessor) Fold(text string) string {
	return cases.Fold().String(text)
}

// TruncateText safely truncates text to the specified maximum size and
// ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Trim bytes until the tail is a complete UTF-8 sequence
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated
}

// ProcessBody strips markup and truncates in one operation
func (tp *TextProcessor) ProcessBody(body string, maxSize int) string {
	return tp.TruncateText(tp.StripHTML(body), maxSize)
}
