package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// tokenCounterName is the single counter row backing encounter tokens
const tokenCounterName = "encounter_token"

// TokenAdapter implements TokenIssuer on top of a single atomically
// incremented counter row. A count-the-encounters-and-add-one scheme mints
// duplicate tokens under concurrent intake; the row update below is
// serialized by the database, so concurrent callers each observe a
// distinct, consecutive value.
type TokenAdapter struct {
	client  *postgres.Client
	db      *goqu.Database
	prefix  string
	padding int
}

// NewTokenAdapter creates a new token adapter
func NewTokenAdapter(client *postgres.Client, prefix string, padding int) repositories.TokenIssuer {
	return &TokenAdapter{
		client:  client,
		db:      goqu.New("postgres", client.DB()),
		prefix:  prefix,
		padding: padding,
	}
}

// Issue returns the next token in the sequence
func (a *TokenAdapter) Issue(ctx context.Context) (string, error) {
	query, args, err := a.db.Update("workflow_counters").
		Set(goqu.Record{"value": goqu.L("value + 1")}).
		Where(goqu.Ex{"name": tokenCounterName}).
		Returning("value").
		ToSQL()
	if err != nil {
		return "", apperrors.NewInternalError("failed to build token query", err)
	}

	var value int64
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", apperrors.NewFatalError("token counter row is missing", nil)
	}
	if err != nil {
		return "", wrapDBError("failed to increment token counter", err)
	}

	if value < 1 {
		return "", apperrors.NewFatalError(fmt.Sprintf("token counter returned %d", value), nil)
	}

	return FormatToken(a.prefix, a.padding, value), nil
}

// FormatToken renders a counter value as a human-readable token,
// zero-padded to at least the configured number of digits.
func FormatToken(prefix string, padding int, value int64) string {
	return fmt.Sprintf("%s%0*d", prefix, padding, value)
}
