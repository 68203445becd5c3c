// Package activity writes human-readable operational audit messages.
// Writes are best-effort: they back operator visibility, never
// correctness, so every path tolerates a nil writer.
package activity

import "log/slog"

// Writer records operational activity. The zero value is unusable; use
// NewWriter. A nil *Writer discards everything.
type Writer struct {
	logger *slog.Logger
}

// NewWriter returns a writer backed by the process logger.
func NewWriter() *Writer {
	return &Writer{logger: slog.With("component", "activity")}
}

// Write records one audit message attributed to a subsystem.
func (w *Writer) Write(source, message string) {
	if w == nil {
		return
	}
	w.logger.Info(message, "source", source)
}
