package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/repository"
)

type callRepository struct {
	db *sqlx.DB
}

func NewCallRepository(db *sqlx.DB) repository.CallRepository {
	return &callRepository{db: db}
}

func (r *callRepository) Create(ctx context.Context, call *model.Call) error {
	query := `
		INSERT INTO calls (patient_id, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if call.Status == "" {
		call.Status = model.CallStatusQueued
	}
	call.CreatedAt = time.Now().UTC()

	err := r.db.QueryRowxContext(ctx, query,
		call.PatientID,
		call.Status,
		call.ScheduledAt,
		call.CreatedAt,
	).Scan(&call.ID)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

func (r *callRepository) Get(ctx context.Context, id int64) (*model.Call, error) {
	query := `SELECT * FROM calls WHERE id = $1`
	var call model.Call
	err := r.db.GetContext(ctx, &call, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return &call, nil
}

func (r *callRepository) GetByVapiCallID(ctx context.Context, vapiCallID string) (*model.Call, error) {
	query := `SELECT * FROM calls WHERE vapi_call_id = $1`
	var call model.Call
	err := r.db.GetContext(ctx, &call, query, vapiCallID)
	if err != nil {
		return nil, fmt.Errorf("failed to get call by vapi id: %w", err)
	}
	return &call, nil
}

func (r *callRepository) MarkLaunched(ctx context.Context, callID int64, vapiCallID string) error {
	query := `UPDATE calls SET vapi_call_id = $1, status = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, vapiCallID, model.CallStatusInProgress, callID)
	if err != nil {
		return fmt.Errorf("failed to mark call launched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("call %d not found", callID)
	}
	return nil
}

func (r *callRepository) MarkFailed(ctx context.Context, callID int64, reason string) error {
	query := `UPDATE calls SET status = $1, fail_reason = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, model.CallStatusFailed, reason, callID)
	if err != nil {
		return fmt.Errorf("failed to mark call failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("call %d not found", callID)
	}
	return nil
}

func (r *callRepository) UpdateByVapiCallID(ctx context.Context, vapiCallID string, upd model.CallStatusUpdate) (bool, error) {
	// COALESCE keeps stored timestamps when the webhook omits them.
	query := `
		UPDATE calls
		SET status = $1,
			started_at = COALESCE($2, started_at),
			ended_at = COALESCE($3, ended_at),
			fail_reason = CASE WHEN $4 THEN NULL ELSE fail_reason END
		WHERE vapi_call_id = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		upd.Status,
		upd.StartedAt,
		upd.EndedAt,
		upd.ClearFailReason,
		vapiCallID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update call by vapi id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *callRepository) UpsertResult(ctx context.Context, result *model.CallResult) error {
	query := `
		INSERT INTO call_results (call_id, summary, structured_json, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (call_id) DO UPDATE
		SET summary = EXCLUDED.summary,
			structured_json = EXCLUDED.structured_json,
			raw_payload = EXCLUDED.raw_payload
		RETURNING id
	`
	result.CreatedAt = time.Now().UTC()

	err := r.db.QueryRowxContext(ctx, query,
		result.CallID,
		result.Summary,
		result.StructuredJSON,
		result.RawPayload,
		result.CreatedAt,
	).Scan(&result.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert call result: %w", err)
	}
	return nil
}

func (r *callRepository) GetResult(ctx context.Context, callID int64) (*model.CallResult, error) {
	query := `SELECT * FROM call_results WHERE call_id = $1`
	var result model.CallResult
	err := r.db.GetContext(ctx, &result, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get call result: %w", err)
	}
	return &result, nil
}

func (r *callRepository) ListDetails(ctx context.Context) ([]*model.CallDetail, error) {
	query := `SELECT * FROM calls ORDER BY id DESC`
	var calls []*model.Call
	if err := r.db.SelectContext(ctx, &calls, query); err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	details := make([]*model.CallDetail, 0, len(calls))
	for _, call := range calls {
		detail, err := r.buildDetail(ctx, call)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

func (r *callRepository) GetDetail(ctx context.Context, id int64) (*model.CallDetail, error) {
	call, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.buildDetail(ctx, call)
}

func (r *callRepository) buildDetail(ctx context.Context, call *model.Call) (*model.CallDetail, error) {
	detail := &model.CallDetail{Call: call}

	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, `SELECT * FROM patients WHERE id = $1`, call.PatientID)
	if err == nil {
		detail.Patient = &patient
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get patient for call %d: %w", call.ID, err)
	}

	result, err := r.GetResult(ctx, call.ID)
	if err == nil {
		detail.Result = result
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get result for call %d: %w", call.ID, err)
	}
	return detail, nil
}
