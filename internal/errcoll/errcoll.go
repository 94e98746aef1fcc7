// Package errcoll contains implementations of error collectors that process
// information about non-critical errors, possibly sending them to a remote
// location.
package errcoll

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Interface is the interface for error collectors.
type Interface interface {
	Collect(ctx context.Context, err error)
}

// Collect is a helper for reporting non-critical errors.  It writes the error
// into the log and also into errColl.
func Collect(
	ctx context.Context,
	errColl Interface,
	logger *slog.Logger,
	msg string,
	err error,
) {
	logger.ErrorContext(ctx, msg, slogutil.KeyError, err)
	errColl.Collect(ctx, fmt.Errorf("%s: %w", msg, err))
}
