package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

const maxLogSize = 2 * 1024 * 1024 // 2MB

type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup installs the default slog logger. Console output goes through tint;
// the log file always gets plain text (or JSON) so it stays greppable.
func Setup(logPath, level string, asJSON bool) (*RotatingWriter, error) {
	lvl := ParseLevel(level)

	if logPath == "" {
		slog.SetDefault(slog.New(consoleHandler(os.Stderr, lvl, asJSON)))
		return nil, nil
	}

	rw, err := OpenRotating(logPath, maxLogSize)
	if err != nil {
		slog.SetDefault(slog.New(consoleHandler(os.Stderr, lvl, asJSON)))
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var fileHandler slog.Handler
	if asJSON {
		fileHandler = slog.NewJSONHandler(rw, opts)
	} else {
		fileHandler = slog.NewTextHandler(rw, opts)
	}

	slog.SetDefault(slog.New(fanout{consoleHandler(os.Stderr, lvl, asJSON), fileHandler}))
	return rw, nil
}

func consoleHandler(w io.Writer, lvl slog.Level, asJSON bool) slog.Handler {
	if asJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    !isTerminal(w),
	})
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenRotating opens path for appending, truncating it first if it already
// exceeds maxSize.
func OpenRotating(logPath string, maxSize int64) (*RotatingWriter, error) {
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxSize {
		os.Truncate(logPath, 0)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	info, _ := f.Stat()
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	return &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: maxSize,
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()

	// Keep one backup
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
