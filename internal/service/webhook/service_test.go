package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendsure/attendsure-api/internal/model"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
	"github.com/attendsure/attendsure-api/pkg/logger"
	"github.com/attendsure/attendsure-api/pkg/metrics"
)

type fakeCallRepo struct {
	mu         sync.Mutex
	calls      map[int64]*model.Call
	results    map[int64]*model.CallResult
	lastUpdate *model.CallStatusUpdate
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{
		calls:   make(map[int64]*model.Call),
		results: make(map[int64]*model.CallResult),
	}
}

func (r *fakeCallRepo) add(call *model.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[call.ID] = call
}

func (r *fakeCallRepo) Create(_ context.Context, call *model.Call) error {
	r.add(call)
	return nil
}

func (r *fakeCallRepo) Get(_ context.Context, id int64) (*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[id]
	if !ok {
		return nil, fmt.Errorf("failed to get call: %w", sql.ErrNoRows)
	}
	return call, nil
}

func (r *fakeCallRepo) GetByVapiCallID(_ context.Context, vapiCallID string) (*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.calls {
		if call.VapiCallID != nil && *call.VapiCallID == vapiCallID {
			return call, nil
		}
	}
	return nil, fmt.Errorf("failed to get call by vapi id: %w", sql.ErrNoRows)
}

func (r *fakeCallRepo) MarkLaunched(_ context.Context, callID int64, vapiCallID string) error {
	return nil
}

func (r *fakeCallRepo) MarkFailed(_ context.Context, callID int64, reason string) error {
	return nil
}

func (r *fakeCallRepo) UpdateByVapiCallID(_ context.Context, vapiCallID string, upd model.CallStatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUpdate = &upd
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
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.CallID] = result
	return nil
}

func (r *fakeCallRepo) GetResult(_ context.Context, callID int64) (*model.CallResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[callID]
	if !ok {
		return nil, fmt.Errorf("failed to get call result: %w", sql.ErrNoRows)
	}
	return result, nil
}

func (r *fakeCallRepo) ListDetails(_ context.Context) ([]*model.CallDetail, error) {
	return nil, nil
}

func (r *fakeCallRepo) GetDetail(_ context.Context, id int64) (*model.CallDetail, error) {
	return nil, fmt.Errorf("failed to get call: %w", sql.ErrNoRows)
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (r *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string) error {
	return nil
}

func newTestService(calls *fakeCallRepo, secret string) *Service {
	return NewService(
		calls,
		&fakeOutboxRepo{},
		secret,
		logger.NewLogger(&logger.Config{Output: io.Discard}),
		metrics.NewMetrics(prometheus.NewRegistry(), "test"),
	)
}

func inProgressCall(id int64, vapiCallID string) *model.Call {
	reason := "stale reason"
	return &model.Call{
		ID:         id,
		PatientID:  id,
		VapiCallID: &vapiCallID,
		Status:     model.CallStatusInProgress,
		FailReason: &reason,
	}
}

func TestProcessEndOfCallCompletesCall(t *testing.T) {
	calls := newFakeCallRepo()
	calls.add(inProgressCall(1, "ext-1"))
	svc := newTestService(calls, "")

	body := []byte(`{
		"call": {
			"id": "ext-1",
			"status": "completed",
			"startedAt": "2026-08-31T10:00:00Z",
			"endedAt": "2026-08-31T10:02:30Z",
			"analysis": {"summary": "confirmed attendance"}
		}
	}`)
	require.NoError(t, svc.ProcessEndOfCall(context.Background(), "", body))

	stored, err := calls.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusCompleted, stored.Status)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, "2026-08-31T10:00:00Z", *stored.StartedAt)
	require.NotNil(t, stored.EndedAt)
	assert.Equal(t, "2026-08-31T10:02:30Z", *stored.EndedAt)
	assert.Nil(t, stored.FailReason)

	result, err := calls.GetResult(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "confirmed attendance", *result.Summary)
	assert.JSONEq(t, string(body), string(result.RawPayload))
}

func TestProcessEndOfCallTopLevelShape(t *testing.T) {
	calls := newFakeCallRepo()
	calls.add(inProgressCall(1, "ext-1"))
	svc := newTestService(calls, "")

	body := []byte(`{"id": "ext-1", "status": "failed"}`)
	require.NoError(t, svc.ProcessEndOfCall(context.Background(), "", body))

	stored, err := calls.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusFailed, stored.Status)
}

func TestProcessEndOfCallDefaultsToCompleted(t *testing.T) {
	calls := newFakeCallRepo()
	calls.add(inProgressCall(1, "ext-1"))
	svc := newTestService(calls, "")

	require.NoError(t, svc.ProcessEndOfCall(context.Background(), "", []byte(`{"id": "ext-1"}`)))

	stored, err := calls.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusCompleted, stored.Status)
}

func TestProcessEndOfCallIdempotentRedelivery(t *testing.T) {
	calls := newFakeCallRepo()
	calls.add(inProgressCall(1, "ext-1"))
	svc := newTestService(calls, "")

	first := []byte(`{"id": "ext-1", "status": "completed", "analysis": {"summary": "first"}}`)
	second := []byte(`{"id": "ext-1", "status": "completed", "analysis": {"summary": "second"}}`)
	require.NoError(t, svc.ProcessEndOfCall(context.Background(), "", first))
	require.NoError(t, svc.ProcessEndOfCall(context.Background(), "", second))

	// One result row per call; the latest delivery wins.
	result, err := calls.GetResult(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "second", *result.Summary)
}

func TestProcessEndOfCallUnknownIDAcknowledged(t *testing.T) {
	calls := newFakeCallRepo()
	svc := newTestService(calls, "")

	err := svc.ProcessEndOfCall(context.Background(), "", []byte(`{"id": "ghost", "status": "completed"}`))
	assert.NoError(t, err)

	// The miss-branch update must not touch any stored fail reason.
	require.NotNil(t, calls.lastUpdate)
	assert.False(t, calls.lastUpdate.ClearFailReason)
}

func TestProcessEndOfCallKnownIDClearsFailReason(t *testing.T) {
	calls := newFakeCallRepo()
	calls.add(inProgressCall(1, "ext-1"))
	svc := newTestService(calls, "")

	require.NoError(t, svc.ProcessEndOfCall(context.Background(), "", []byte(`{"id": "ext-1"}`)))

	require.NotNil(t, calls.lastUpdate)
	assert.True(t, calls.lastUpdate.ClearFailReason)
	stored, err := calls.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, stored.FailReason)
}

func TestProcessEndOfCallSignature(t *testing.T) {
	calls := newFakeCallRepo()
	calls.add(inProgressCall(1, "ext-1"))
	svc := newTestService(calls, "s3cret")

	err := svc.ProcessEndOfCall(context.Background(), "wrong", []byte(`{"id": "ext-1"}`))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrUnauthorized, appErr.Code)

	// Correct signature is accepted; empty configured secret skips the check.
	assert.NoError(t, svc.ProcessEndOfCall(context.Background(), "s3cret", []byte(`{"id": "ext-1"}`)))
}

func TestProcessEndOfCallMissingID(t *testing.T) {
	svc := newTestService(newFakeCallRepo(), "")

	err := svc.ProcessEndOfCall(context.Background(), "", []byte(`{"status": "completed"}`))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestProcessEndOfCallMalformedBody(t *testing.T) {
	svc := newTestService(newFakeCallRepo(), "")

	err := svc.ProcessEndOfCall(context.Background(), "", []byte(`{not json`))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestMergeStructured(t *testing.T) {
	structured := json.RawMessage(`{"attending": true}`)
	outputs := json.RawMessage(`{"sentiment": "positive"}`)

	tests := []struct {
		name     string
		call     *providerCall
		expected string
	}{
		{
			name: "analysis only stored as-is",
			call: &providerCall{Analysis: &struct {
				Summary        *string         `json:"summary"`
				StructuredData json.RawMessage `json:"structuredData"`
			}{StructuredData: structured}},
			expected: `{"attending": true}`,
		},
		{
			name: "artifact only stored as-is",
			call: &providerCall{Artifact: &struct {
				StructuredOutputs json.RawMessage `json:"structuredOutputs"`
			}{StructuredOutputs: outputs}},
			expected: `{"sentiment": "positive"}`,
		},
		{
			name: "both kept under distinct keys",
			call: &providerCall{
				Analysis: &struct {
					Summary        *string         `json:"summary"`
					StructuredData json.RawMessage `json:"structuredData"`
				}{StructuredData: structured},
				Artifact: &struct {
					StructuredOutputs json.RawMessage `json:"structuredOutputs"`
				}{StructuredOutputs: outputs},
			},
			expected: `{"analysisStructuredData": {"attending": true}, "structuredOutputs": {"sentiment": "positive"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeStructured(tt.call)
			assert.JSONEq(t, tt.expected, string(got))
		})
	}
}

func TestMergeStructuredEmpty(t *testing.T) {
	assert.Nil(t, mergeStructured(&providerCall{}))
}
