package call

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/repository"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
	"github.com/attendsure/attendsure-api/pkg/logger"
)

// Service coordinates batch call launches: it validates patients, creates
// queued call records synchronously and hands each one to the launcher. The
// caller gets call ids back before any provider traffic happens.
type Service struct {
	patients repository.PatientRepository
	calls    repository.CallRepository
	outbox   repository.OutboxRepository
	launcher *Launcher
	logger   *logger.Logger
}

func NewService(
	patients repository.PatientRepository,
	calls repository.CallRepository,
	outbox repository.OutboxRepository,
	launcher *Launcher,
	logger *logger.Logger,
) *Service {
	return &Service{
		patients: patients,
		calls:    calls,
		outbox:   outbox,
		launcher: launcher,
		logger:   logger,
	}
}

func (s *Service) LaunchCalls(ctx context.Context, req *model.LaunchCallsRequest) ([]int64, error) {
	if len(req.PatientIDs) == 0 {
		return nil, apperrors.BadRequest("patientIds is required", nil)
	}

	callIDs := make([]int64, 0, len(req.PatientIDs))
	for _, patientID := range req.PatientIDs {
		patient, err := s.patients.Get(ctx, patientID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperrors.NotFound(fmt.Sprintf("patient %d", patientID), err)
			}
			return nil, apperrors.Internal(fmt.Errorf("failed to load patient %d: %w", patientID, err))
		}

		call := &model.Call{
			PatientID: patientID,
			Status:    model.CallStatusQueued,
		}
		if req.ScheduleAt != "" {
			scheduleAt := req.ScheduleAt
			call.ScheduledAt = &scheduleAt
		}
		if err := s.calls.Create(ctx, call); err != nil {
			return nil, apperrors.Internal(fmt.Errorf("failed to create call record: %w", err))
		}
		callIDs = append(callIDs, call.ID)

		s.emitQueued(ctx, call)

		s.logger.Info("queued launch call", "patient_id", patientID, "call_id", call.ID)
		s.launcher.Dispatch(call, patient, req.ScheduleAt)
	}

	return callIDs, nil
}

func (s *Service) ListCalls(ctx context.Context) ([]*model.CallDetail, error) {
	details, err := s.calls.ListDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return details, nil
}

func (s *Service) GetCall(ctx context.Context, id int64) (*model.CallDetail, error) {
	detail, err := s.calls.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(fmt.Sprintf("call %d", id), err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get call %d: %w", id, err))
	}
	return detail, nil
}

func (s *Service) emitQueued(ctx context.Context, call *model.Call) {
	payload := fmt.Sprintf(`{"callId":%d,"patientId":%d}`, call.ID, call.PatientID)
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: model.EventCallQueued,
		Payload:   []byte(payload),
	}); err != nil {
		s.logger.Error(err, "failed to create outbox event", "call_id", call.ID)
	}
}
