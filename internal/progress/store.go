package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/ocrbatch/internal/common"
)

// Store persists RunState snapshots. Save replaces the whole snapshot
// atomically; Load returns an empty state when nothing usable is stored.
type Store interface {
	Load(ctx context.Context) (RunState, error)
	Save(ctx context.Context, state RunState) error
	Close() error
}

// ErrReadOnly is returned by Save on a store opened with ReadOnly.
var ErrReadOnly = errors.New("progress store is read-only")

type openOptions struct {
	readOnly bool
}

type OpenOption func(*openOptions)

// ReadOnly opens a store for inspection: Save is refused and a corrupt
// snapshot file is reported but left in place.
func ReadOnly() OpenOption {
	return func(o *openOptions) { o.readOnly = true }
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg common.ProgressConfig, logger *slog.Logger, opts ...OpenOption) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	switch strings.ToLower(cfg.Backend) {
	case "", common.BackendFile:
		s := NewFileStore(cfg.File, logger)
		s.readOnly = o.readOnly
		return s, nil
	case common.BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		s, err := OpenSQLite(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		s.readOnly = o.readOnly
		return s, nil
	case common.BackendPostgres:
		s, err := OpenPostgres(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		s.readOnly = o.readOnly
		return s, nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown progress backend %q", cfg.Backend), common.ErrInvalidInput)
}
