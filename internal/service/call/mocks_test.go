package call

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/pkg/logger"
	"github.com/attendsure/attendsure-api/pkg/metrics"
	"github.com/attendsure/attendsure-api/pkg/vapi"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Output: io.Discard})
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry(), "test")
}

type fakePatientRepo struct {
	mu       sync.Mutex
	patients map[int64]*model.Patient
}

func newFakePatientRepo() *fakePatientRepo {
	return &fakePatientRepo{patients: make(map[int64]*model.Patient)}
}

func (r *fakePatientRepo) Create(_ context.Context, patient *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	patient.ID = int64(len(r.patients) + 1)
	r.patients[patient.ID] = patient
	return nil
}

func (r *fakePatientRepo) Get(_ context.Context, id int64) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	patient, ok := r.patients[id]
	if !ok {
		return nil, fmt.Errorf("failed to get patient: %w", sql.ErrNoRows)
	}
	return patient, nil
}

func (r *fakePatientRepo) List(_ context.Context, limit, offset int) ([]*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Patient
	for _, p := range r.patients {
		out = append(out, p)
	}
	return out, nil
}

type fakeCallRepo struct {
	mu     sync.Mutex
	nextID int64
	calls  map[int64]*model.Call
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[int64]*model.Call)}
}

func (r *fakeCallRepo) Create(_ context.Context, call *model.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	call.ID = r.nextID
	if call.Status == "" {
		call.Status = model.CallStatusQueued
	}
	cp := *call
	r.calls[call.ID] = &cp
	return nil
}

func (r *fakeCallRepo) Get(_ context.Context, id int64) (*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[id]
	if !ok {
		return nil, fmt.Errorf("failed to get call: %w", sql.ErrNoRows)
	}
	cp := *call
	return &cp, nil
}

func (r *fakeCallRepo) GetByVapiCallID(_ context.Context, vapiCallID string) (*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.calls {
		if call.VapiCallID != nil && *call.VapiCallID == vapiCallID {
			cp := *call
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("failed to get call by vapi id: %w", sql.ErrNoRows)
}

func (r *fakeCallRepo) MarkLaunched(_ context.Context, callID int64, vapiCallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return fmt.Errorf("call %d not found", callID)
	}
	call.VapiCallID = &vapiCallID
	call.Status = model.CallStatusInProgress
	return nil
}

func (r *fakeCallRepo) MarkFailed(_ context.Context, callID int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return fmt.Errorf("call %d not found", callID)
	}
	call.Status = model.CallStatusFailed
	call.FailReason = &reason
	return nil
}

func (r *fakeCallRepo) UpdateByVapiCallID(_ context.Context, vapiCallID string, upd model.CallStatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.calls {
		if call.VapiCallID != nil && *call.VapiCallID == vapiCallID {
			call.Status = upd.Status
			if upd.StartedAt != nil {
				call.StartedAt = upd.StartedAt
			}
			if upd.EndedAt != nil {
				call.EndedAt = upd.EndedAt
			}
			if upd.ClearFailReason {
				call.FailReason = nil
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCallRepo) UpsertResult(_ context.Context, result *model.CallResult) error {
	return nil
}

func (r *fakeCallRepo) GetResult(_ context.Context, callID int64) (*model.CallResult, error) {
	return nil, fmt.Errorf("failed to get call result: %w", sql.ErrNoRows)
}

func (r *fakeCallRepo) ListDetails(_ context.Context) ([]*model.CallDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CallDetail
	for _, call := range r.calls {
		cp := *call
		out = append(out, &model.CallDetail{Call: &cp})
	}
	return out, nil
}

func (r *fakeCallRepo) GetDetail(_ context.Context, id int64) (*model.CallDetail, error) {
	call, err := r.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	return &model.CallDetail{Call: call}, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{}
}

func (r *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.OutboxEvent(nil), r.events...), nil
}

func (r *fakeOutboxRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string) error {
	return nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

// fakeOutboundClient lets tests script provider behavior per call.
type fakeOutboundClient struct {
	mu       sync.Mutex
	requests []vapi.CreateCallRequest
	createFn func(ctx context.Context, req vapi.CreateCallRequest) (*vapi.CreateCallResponse, error)
}

func (c *fakeOutboundClient) CreateOutboundCall(ctx context.Context, req vapi.CreateCallRequest) (*vapi.CreateCallResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.createFn(ctx, req)
}

func (c *fakeOutboundClient) lastRequest() vapi.CreateCallRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}
