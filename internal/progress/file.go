package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

// FileStore keeps the snapshot in a single JSON file, replaced by rename on every save.
type FileStore struct {
	path     string
	logger   *slog.Logger
	now      func() time.Time
	readOnly bool
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger, now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file yields an empty state. A file that
// cannot be parsed or fails validation is moved aside and also yields an empty state.
func (s *FileStore) Load(_ context.Context) (RunState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("progress.load.empty", "path", s.path)
			return NewRunState(), nil
		}
		s.logger.Warn("progress.load.unreadable", "path", s.path, "err", err)
		return NewRunState(), nil
	}

	state, err := decodeSnapshot(data)
	if err != nil {
		s.quarantine(err)
		return NewRunState(), nil
	}

	for _, id := range state.IDs() {
		if verr := state[id].Validate(); verr != nil {
			s.logger.Warn("progress.load.invalid_entry", "path", s.path, "document", id, "err", verr)
			delete(state, id)
		}
	}
	s.logger.Info("progress.load.ok", "path", s.path, "documents", len(state))
	return state, nil
}

func decodeSnapshot(data []byte) (RunState, error) {
	if err := ValidateSnapshot(data); err != nil {
		return nil, err
	}
	state := NewRunState()
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}

func (s *FileStore) quarantine(cause error) {
	if s.readOnly {
		s.logger.Warn("progress.load.corrupt", "path", s.path, "err", cause, "read_only", true)
		return
	}
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, dst); err != nil {
		s.logger.Error("progress.load.corrupt", "path", s.path, "err", cause, "quarantine_err", err)
		return
	}
	s.logger.Warn("progress.load.corrupt", "path", s.path, "moved_to", dst, "err", cause)
}

// Save writes the snapshot to a temporary file in the same directory, syncs
// it and renames it over the previous snapshot.
// It does not observe ctx: the final save of an interrupted run must still land.
func (s *FileStore) Save(_ context.Context, state RunState) error {
	if s.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, s.path)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", common.ErrPersistence, err)
	}
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	s.logger.Debug("progress.save.ok", "path", s.path, "documents", len(state))
	return nil
}

func (s *FileStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir persists the rename. Some platforms cannot fsync a directory; that is ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
