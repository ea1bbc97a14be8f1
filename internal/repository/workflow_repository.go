package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// WorkflowRepo stores each booking's progress checklist as a JSON column.
type WorkflowRepo struct{ DB *sql.DB }

func NewWorkflowRepo(db *sql.DB) *WorkflowRepo { return &WorkflowRepo{DB: db} }

func (r *WorkflowRepo) Start(ctx context.Context, wf model.ServiceWorkflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO service_workflows (booking_id, steps, created_at, updated_at) VALUES (?,?,?,?)",
		wf.BookingID, steps, wf.CreatedAt.UTC(), wf.UpdatedAt.UTC())
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// SetStep rewrites one step under a row lock.
func (r *WorkflowRepo) SetStep(ctx context.Context, bookingID, step string, status model.StepStatus) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	wf, err := getWorkflow(ctx, tx, bookingID, true)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	found := false
	for i := range wf.Steps {
		if wf.Steps[i].Name == step {
			wf.Steps[i].Status = status
			wf.Steps[i].UpdatedAt = now
			found = true
		}
	}
	if !found {
		return fmt.Errorf("workflow step %q: %w", step, ErrNotFound)
	}
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE service_workflows SET steps=?, updated_at=? WHERE booking_id=?", steps, now, bookingID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetWorkflow loads a booking's workflow.
func (r *WorkflowRepo) GetWorkflow(ctx context.Context, bookingID string) (*model.ServiceWorkflow, error) {
	return getWorkflow(ctx, r.DB, bookingID, false)
}

func getWorkflow(ctx context.Context, q queryer, bookingID string, lock bool) (*model.ServiceWorkflow, error) {
	query := "SELECT booking_id, steps, created_at, updated_at FROM service_workflows WHERE booking_id=?"
	if lock {
		query += " FOR UPDATE"
	}
	var (
		wf  model.ServiceWorkflow
		raw []byte
	)
	err := q.QueryRowContext(ctx, query, bookingID).Scan(&wf.BookingID, &raw, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &wf.Steps); err != nil {
		return nil, fmt.Errorf("decode workflow steps: %w", err)
	}
	return &wf, nil
}
