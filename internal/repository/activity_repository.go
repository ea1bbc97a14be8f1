package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// ActivityRepo appends audit activities.
type ActivityRepo struct{ DB *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{DB: db} }

func (r *ActivityRepo) Log(ctx context.Context, a model.Activity) error {
	var details any
	if len(a.Details) > 0 {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return err
		}
		details = b
	}
	var booking any
	if a.BookingID != "" {
		booking = a.BookingID
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO activities (user_id, action, booking_id, details, created_at) VALUES (?,?,?,?,?)",
		a.UserID, a.Action, booking, details, a.At.UTC())
	return err
}
