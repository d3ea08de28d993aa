package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/attendsure/attendsure-api/internal/model"
)

type PatientRepository interface {
	Create(ctx context.Context, patient *model.Patient) error
	Get(ctx context.Context, id int64) (*model.Patient, error)
	List(ctx context.Context, limit, offset int) ([]*model.Patient, error)
}

type CallRepository interface {
	Create(ctx context.Context, call *model.Call) error
	Get(ctx context.Context, id int64) (*model.Call, error)
	GetByVapiCallID(ctx context.Context, vapiCallID string) (*model.Call, error)
	MarkLaunched(ctx context.Context, callID int64, vapiCallID string) error
	MarkFailed(ctx context.Context, callID int64, reason string) error
	// UpdateByVapiCallID applies a webhook status update to the call holding
	// the provider id. Returns false without error when no such call exists.
	UpdateByVapiCallID(ctx context.Context, vapiCallID string, upd model.CallStatusUpdate) (bool, error)
	UpsertResult(ctx context.Context, result *model.CallResult) error
	GetResult(ctx context.Context, callID int64) (*model.CallResult, error)
	ListDetails(ctx context.Context) ([]*model.CallDetail, error)
	GetDetail(ctx context.Context, id int64) (*model.CallDetail, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
}
