package localexecutor

import (
	"bytes"
	"context"
	"log/slog"
)

// maxLine caps a buffered partial line so a process that never writes a
// newline cannot grow the buffer without bound.
const maxLine = 64 << 10

func levelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// lineWriter logs every complete line written to it.
type lineWriter struct {
	logger *slog.Logger
	level  slog.Level
	buf    bytes.Buffer
}

func newLineWriter(logger *slog.Logger, level slog.Level) *lineWriter {
	return &lineWriter{logger: logger, level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		w.emit(bytes.TrimRight(line, "\r\n"))
	}
	if w.buf.Len() > maxLine {
		w.Flush()
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.emit(w.buf.Bytes())
	w.buf.Reset()
}

func (w *lineWriter) emit(line []byte) {
	w.logger.Log(context.Background(), w.level, string(line))
}
