package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Workspace раздаёт детерминированные пути по идентификатору сессии:
// разные сессии не пересекаются, повторный запрос той же сессии перезаписывает файл.
type Workspace struct {
	dir string
	log *zap.Logger
}

func NewWorkspace(dir string, log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Workspace{dir: dir, log: log}, nil
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) Original(session string) *Handle {
	return NewHandle(filepath.Join(w.dir, safeName(session)+"_original.jpg"), w.log)
}

func (w *Workspace) Annotated(session, mode string) *Handle {
	return NewHandle(filepath.Join(w.dir, fmt.Sprintf("%s_annotated_%s.jpg", safeName(session), safeName(mode))), w.log)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "anon"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
