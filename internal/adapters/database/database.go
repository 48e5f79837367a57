// Package database holds the goqu/lib-pq adapters backing the workflow
// repositories. All list operations return point-in-time snapshots; the
// two serialization points of the engine live here: the token counter row
// and the compare-and-swap task transition.
package database

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/lib/pq"

	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// wrapDBError classifies a driver error into the engine's taxonomy. A
// response from the server is not transient; failure to reach the server
// is, and is safe to retry with backoff.
func wrapDBError(message string, err error) *apperrors.AppError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apperrors.NewConflictError(message + ": " + pqErr.Detail)
		case "undefined_table", "undefined_column":
			return apperrors.NewFatalError(message+": schema mismatch", err)
		}
		return apperrors.NewInternalError(message, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, pq.ErrChannelNotOpen) {
		return apperrors.NewTransientIOError(message, err)
	}

	return apperrors.NewInternalError(message, err)
}
