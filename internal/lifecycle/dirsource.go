package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// DirSourceConfig is the configuration structure of a directory-polling
// update source.
type DirSourceConfig struct {
	// Logger is used for logging the operation of the source.  It must not be
	// nil.
	Logger *slog.Logger

	// CacheDir is the root of the component cache.  It must not be empty.
	CacheDir string

	// Interval is the polling interval.  It must be positive.
	Interval time.Duration
}

// DirSource is a [Source] implementation that watches the component cache
// directory for new versioned filter-set folders.  It stands in for a real
// component-updater delivery channel and uses the same folder layout.
type DirSource struct {
	logger   *slog.Logger
	cacheDir string
	ivl      time.Duration
}

// NewDirSource returns a new directory-polling update source.  c must not be
// nil.
func NewDirSource(c *DirSourceConfig) (s *DirSource) {
	return &DirSource{
		logger:   c.Logger,
		cacheDir: c.CacheDir,
		ivl:      c.Interval,
	}
}

// type check
var _ Source = (*DirSource)(nil)

// Subscribe implements the [Source] interface for *DirSource.  The stream
// carries the path of the newest versioned folder of componentID whenever it
// changes, and is closed when ctx is cancelled.
func (s *DirSource) Subscribe(
	ctx context.Context,
	componentID string,
) (updates <-chan string, err error) {
	ch := make(chan string, 1)
	go s.poll(ctx, componentID, ch)

	return ch, nil
}

// poll watches the component directory and sends changed folder paths to ch
// until ctx is cancelled.
func (s *DirSource) poll(ctx context.Context, componentID string, ch chan<- string) {
	defer slogutil.RecoverAndLog(ctx, s.logger)
	defer close(ch)

	tick := time.NewTicker(s.ivl)
	defer tick.Stop()

	prev := ""
	for {
		select {
		case <-ctx.Done():
			s.logger.DebugContext(ctx, "stopping poll", "component_id", componentID)

			return
		case <-tick.C:
			dir, ok := latestVersionDir(ctx, s.logger, s.cacheDir, componentID)
			if !ok || dir == prev {
				continue
			}

			prev = dir
			select {
			case <-ctx.Done():
				return
			case ch <- dir:
				// Go on.
			}
		}
	}
}
