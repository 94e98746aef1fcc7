package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/uuid"
)

// RefreshInitial performs the cold-start load: for every enabled filter list
// without a running update task, it applies the cached filter-set folder as
// if it had just been delivered by the update source.  Registered lists are
// skipped, since their tasks reload the cached filter sets themselves.
func (m *Manager) RefreshInitial(ctx context.Context, lists []*FilterList) {
	for _, fl := range lists {
		if !fl.Enabled || m.hasTask(fl.UUID) {
			continue
		}

		m.refreshList(ctx, fl)
	}
}

// hasTask reports whether an update task for the filter list with the given
// UUID is running.
func (m *Manager) hasTask(id uuid.UUID) (ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok = m.tasks[id]

	return ok
}

// refreshList applies the newest cached filter-set folder of fl, if any.
// This makes the compiled rules available before the source pushes anything;
// a live update later corrects any staleness.
func (m *Manager) refreshList(ctx context.Context, fl *FilterList) {
	if m.cacheDir == "" {
		return
	}

	dir, ok := latestVersionDir(ctx, m.logger, m.cacheDir, fl.ComponentID)
	if !ok {
		return
	}

	m.ApplyUpdate(ctx, fl, dir)
}

// latestVersionDir returns the versioned filter-set folder of componentID
// under cacheDir with the greatest version string.  ok is false when the
// component has no cached folder.
func latestVersionDir(
	ctx context.Context,
	logger *slog.Logger,
	cacheDir string,
	componentID string,
) (dir string, ok bool) {
	base := filepath.Join(cacheDir, componentID)
	ents, err := os.ReadDir(base)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(
				ctx,
				"listing component cache",
				"component_id", componentID,
				slogutil.KeyError, err,
			)
		}

		return "", false
	}

	best := ""
	for _, ent := range ents {
		if ent.IsDir() && ent.Name() > best {
			best = ent.Name()
		}
	}

	if best == "" {
		return "", false
	}

	return filepath.Join(base, best), true
}
