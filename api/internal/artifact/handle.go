package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"xray-bot/api/internal/metrics"
)

type State int

const (
	Pending State = iota
	Written
	Consumed
	Deleted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Written:
		return "written"
	case Consumed:
		return "consumed"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrSave is fatal for a request: nothing downstream can run without the source image.
	ErrSave = errors.New("save artifact")

	ErrState = errors.New("invalid artifact state")
)

// Handle tracks one temporary file from creation to deletion.
// Release deletes the file at most once and never touches a file that was not written.
type Handle struct {
	path string
	log  *zap.Logger

	mu    sync.Mutex
	state State
}

func NewHandle(path string, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handle{path: path, log: log}
}

func (h *Handle) Path() string { return h.path }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Save копирует r в файл и переводит handle в Written.
// При ошибке недописанный файл удаляется, handle остаётся Pending.
func (h *Handle) Save(r io.Reader) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Pending {
		return fmt.Errorf("%w: save in %s", ErrState, h.state)
	}

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		h.discard()
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	if err := f.Close(); err != nil {
		h.discard()
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	h.state = Written
	h.log.Debug("artifact written", zap.String("path", h.path))
	return nil
}

// MarkWritten is used when the file was produced by someone else, e.g. the annotator.
func (h *Handle) MarkWritten() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Pending {
		return fmt.Errorf("%w: mark written in %s", ErrState, h.state)
	}
	h.state = Written
	return nil
}

// Consume records that the transport took the file over.
func (h *Handle) Consume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Written:
		h.state = Consumed
		return nil
	case Consumed:
		return nil
	default:
		return fmt.Errorf("%w: consume in %s", ErrState, h.state)
	}
}

// Release is best-effort: failures are logged and counted, never returned.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Deleted:
		return
	case Pending:
		// nothing on disk that belongs to us
		return
	}
	h.remove()
	h.state = Deleted
}

func (h *Handle) remove() {
	err := os.Remove(h.path)
	switch {
	case err == nil:
		h.log.Debug("artifact deleted", zap.String("path", h.path))
	case errors.Is(err, os.ErrNotExist):
	default:
		metrics.CleanupFailures.Inc()
		h.log.Warn("artifact delete failed", zap.String("path", h.path), zap.Error(err))
	}
}

func (h *Handle) discard() {
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.log.Warn("partial artifact delete failed", zap.String("path", h.path), zap.Error(err))
	}
}
