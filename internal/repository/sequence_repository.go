package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SequenceRepo hands out durable per-name counters from the `sequences`
// table. The increment and the read happen in one statement through
// LAST_INSERT_ID, so concurrent callers never see the same value.
type SequenceRepo struct{ DB *sql.DB }

func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{DB: db} }

func (r *SequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sequences (name, value) VALUES (?, LAST_INSERT_ID(1)) ON DUPLICATE KEY UPDATE value=LAST_INSERT_ID(value+1)",
		name)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return res.LastInsertId()
}
