package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClickCounter performs the atomic click-count increment for a link.
//
// The increment is a single read-modify-write statement executed by the store,
// so concurrent clicks can overcount by at most one per race. Click counts are
// advisory; that bound is acceptable.
type ClickCounter interface {
	Increment(ctx context.Context, code string) (clicks, maxClicks int64, err error)
}

type clickCounter struct {
	pool *pgxpool.Pool
}

// NewClickCounter returns a pgx-backed ClickCounter.
func NewClickCounter(pool *pgxpool.Pool) ClickCounter {
	return &clickCounter{pool: pool}
}

func (c *clickCounter) Increment(ctx context.Context, code string) (int64, int64, error) {
	const query = `
		UPDATE links
		SET click_count = click_count + 1, updated_at = now()
		WHERE code = $1
		RETURNING click_count, max_clicks`

	var clicks, maxClicks int64
	err := c.pool.QueryRow(ctx, query, code).Scan(&clicks, &maxClicks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrLinkNotFound
		}
		return 0, 0, err
	}
	return clicks, maxClicks, nil
}
