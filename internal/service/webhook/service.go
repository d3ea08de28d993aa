package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/repository"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
	"github.com/attendsure/attendsure-api/pkg/logger"
	"github.com/attendsure/attendsure-api/pkg/metrics"
)

// Service reconciles asynchronous end-of-call notifications onto call
// records. Delivery is at-least-once, so every write is an upsert and
// redelivery converges on the same final state.
type Service struct {
	calls   repository.CallRepository
	outbox  repository.OutboxRepository
	secret  string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(
	calls repository.CallRepository,
	outbox repository.OutboxRepository,
	secret string,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		calls:   calls,
		outbox:  outbox,
		secret:  secret,
		logger:  logger,
		metrics: metrics,
	}
}

// providerCall is the call object inside an end-of-call notification. The
// provider sends it either at the top level or nested under "call".
type providerCall struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	StartedAt *string `json:"startedAt"`
	EndedAt   *string `json:"endedAt"`
	Analysis  *struct {
		Summary        *string         `json:"summary"`
		StructuredData json.RawMessage `json:"structuredData"`
	} `json:"analysis"`
	Artifact *struct {
		StructuredOutputs json.RawMessage `json:"structuredOutputs"`
	} `json:"artifact"`
}

// ProcessEndOfCall authenticates and applies one notification. An unknown
// provider call id is tolerated: the provider may deliver before our own
// dispatch record settled, and must not be made to retry for that race.
func (s *Service) ProcessEndOfCall(ctx context.Context, signature string, body []byte) error {
	if s.secret != "" && signature != s.secret {
		return apperrors.Unauthorized("invalid webhook signature", nil)
	}

	call, err := extractCall(body)
	if err != nil {
		s.metrics.WebhooksReceived.WithLabelValues("invalid").Inc()
		return apperrors.BadRequest("invalid webhook payload", err)
	}
	if call.ID == "" {
		s.metrics.WebhooksReceived.WithLabelValues("invalid").Inc()
		return apperrors.BadRequest("missing call id", nil)
	}

	status := model.CallStatus(call.Status)
	if status == "" {
		status = model.CallStatusCompleted
	}
	s.logger.Info("webhook end-of-call received", "vapi_call_id", call.ID, "status", string(status))

	upd := model.CallStatusUpdate{
		Status:          status,
		StartedAt:       call.StartedAt,
		EndedAt:         call.EndedAt,
		ClearFailReason: true,
	}

	existing, err := s.calls.GetByVapiCallID(ctx, call.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Best-effort update; no-op when the record never existed. The
			// stored fail reason is left untouched on this path.
			missUpd := upd
			missUpd.ClearFailReason = false
			if _, err := s.calls.UpdateByVapiCallID(ctx, call.ID, missUpd); err != nil {
				s.logger.Error(err, "best-effort update failed", "vapi_call_id", call.ID)
			}
			s.metrics.WebhooksReceived.WithLabelValues("unmatched").Inc()
			s.logger.Warn("webhook for unknown call acknowledged", "vapi_call_id", call.ID)
			return nil
		}
		return apperrors.Internal(fmt.Errorf("failed to look up call: %w", err))
	}

	if _, err := s.calls.UpdateByVapiCallID(ctx, call.ID, upd); err != nil {
		return apperrors.Internal(fmt.Errorf("failed to update call: %w", err))
	}

	result := &model.CallResult{
		CallID:         existing.ID,
		Summary:        summaryOf(call),
		StructuredJSON: mergeStructured(call),
		RawPayload:     body,
	}
	if err := s.calls.UpsertResult(ctx, result); err != nil {
		return apperrors.Internal(fmt.Errorf("failed to upsert call result: %w", err))
	}

	s.emitOutcome(ctx, existing.ID, call.ID, status)
	s.metrics.WebhooksReceived.WithLabelValues("processed").Inc()
	s.logger.Info("webhook processed", "vapi_call_id", call.ID, "call_id", existing.ID)
	return nil
}

// extractCall unwraps the notification body, preferring a nested "call"
// object over top-level fields.
func extractCall(body []byte) (*providerCall, error) {
	var envelope struct {
		Call json.RawMessage `json:"call"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	raw := body
	if len(envelope.Call) > 0 && string(envelope.Call) != "null" {
		raw = envelope.Call
	}

	var call providerCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, fmt.Errorf("failed to decode call object: %w", err)
	}
	return &call, nil
}

func summaryOf(call *providerCall) *string {
	if call.Analysis == nil {
		return nil
	}
	return call.Analysis.Summary
}

// mergeStructured captures both structured-result shapes the provider has
// shipped: the legacy analysis.structuredData and the newer
// artifact.structuredOutputs. A single shape is stored as-is; both at once
// are kept under distinct keys.
func mergeStructured(call *providerCall) json.RawMessage {
	var structured, outputs json.RawMessage
	if call.Analysis != nil && len(call.Analysis.StructuredData) > 0 && string(call.Analysis.StructuredData) != "null" {
		structured = call.Analysis.StructuredData
	}
	if call.Artifact != nil && len(call.Artifact.StructuredOutputs) > 0 && string(call.Artifact.StructuredOutputs) != "null" {
		outputs = call.Artifact.StructuredOutputs
	}

	switch {
	case structured != nil && outputs != nil:
		combined, err := json.Marshal(map[string]json.RawMessage{
			"analysisStructuredData": structured,
			"structuredOutputs":      outputs,
		})
		if err != nil {
			return structured
		}
		return combined
	case structured != nil:
		return structured
	case outputs != nil:
		return outputs
	default:
		return nil
	}
}

func (s *Service) emitOutcome(ctx context.Context, callID int64, vapiCallID string, status model.CallStatus) {
	eventType := model.EventCallCompleted
	if status == model.CallStatusFailed {
		eventType = model.EventCallFailed
	}
	payload := fmt.Sprintf(`{"callId":%d,"vapiCallId":%q,"status":%q}`, callID, vapiCallID, string(status))
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   []byte(payload),
	}); err != nil {
		s.logger.Error(err, "failed to create outbox event", "call_id", callID)
	}
}
