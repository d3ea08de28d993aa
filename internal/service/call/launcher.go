package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/repository"
	"github.com/attendsure/attendsure-api/pkg/logger"
	"github.com/attendsure/attendsure-api/pkg/metrics"
	"github.com/attendsure/attendsure-api/pkg/vapi"
)

// OutboundClient is the provider boundary consumed by the launcher.
type OutboundClient interface {
	CreateOutboundCall(ctx context.Context, req vapi.CreateCallRequest) (*vapi.CreateCallResponse, error)
}

type LauncherConfig struct {
	ConcurrencyLimit int
	UseVapiScheduler bool
	AssistantID      string
	PhoneNumberID    string
	DispatchTimeout  time.Duration
	// StoreTimeout bounds the state writes that happen after dispatch, which
	// run on a fresh context because the spawning request is long gone.
	StoreTimeout time.Duration
}

// Launcher drives queued calls through delay, admission and provider dispatch.
// Each call gets its own goroutine; the admission semaphore bounds how many
// are talking to the provider at once. Every task terminates in a persisted
// in_progress or failed state.
type Launcher struct {
	calls   repository.CallRepository
	outbox  repository.OutboxRepository
	client  OutboundClient
	cfg     LauncherConfig
	sem     chan struct{}
	logger  *logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewLauncher(
	calls repository.CallRepository,
	outbox repository.OutboxRepository,
	client OutboundClient,
	cfg LauncherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Launcher {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 2
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}

	return &Launcher{
		calls:   calls,
		outbox:  outbox,
		client:  client,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.ConcurrencyLimit),
		logger:  logger,
		metrics: metrics,
	}
}

// Dispatch spawns the fire-and-forget task for one queued call. Failures are
// absorbed into the call's persisted state and never reach the caller.
func (l *Launcher) Dispatch(call *model.Call, patient *model.Patient, scheduleAt string) {
	l.wg.Add(1)
	go l.run(call, patient, scheduleAt)
}

// Wait blocks until every spawned dispatch task has finished. Used by
// graceful shutdown and tests.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

func (l *Launcher) run(call *model.Call, patient *model.Patient, scheduleAt string) {
	defer l.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			l.fail(call.ID, fmt.Sprintf("dispatch panic: %v", r))
		}
	}()

	if scheduleAt != "" && !l.cfg.UseVapiScheduler {
		l.waitUntil(call.ID, scheduleAt)
	}

	l.sem <- struct{}{}
	l.metrics.DispatchInFlight.Inc()
	defer func() {
		l.metrics.DispatchInFlight.Dec()
		<-l.sem
	}()

	l.metrics.DispatchAttempts.Inc()
	l.logger.Info("launching call", "call_id", call.ID, "patient_id", patient.ID)

	req := vapi.CreateCallRequest{
		Phone:          NormalizePhone(patient.Phone),
		AssistantID:    l.cfg.AssistantID,
		VariableValues: buildVariableValues(patient),
		Metadata: map[string]interface{}{
			"patientId": patient.ID,
			"callId":    call.ID,
		},
		PhoneNumberID: l.cfg.PhoneNumberID,
	}
	if l.cfg.UseVapiScheduler {
		req.ScheduleAt = scheduleAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.DispatchTimeout)
	defer cancel()

	timer := prometheus.NewTimer(l.metrics.DispatchLatency)
	resp, err := l.client.CreateOutboundCall(ctx, req)
	timer.ObserveDuration()

	if err != nil {
		l.fail(call.ID, err.Error())
		return
	}

	vapiCallID := resp.CallID()
	// Logged before the store write so the provider id survives a crash in
	// the window between dispatch success and the state flip.
	l.logger.Info("call launched", "call_id", call.ID, "vapi_call_id", vapiCallID)

	storeCtx, storeCancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
	defer storeCancel()

	if err := l.calls.MarkLaunched(storeCtx, call.ID, vapiCallID); err != nil {
		l.logger.Error(err, "failed to mark call launched", "call_id", call.ID, "vapi_call_id", vapiCallID)
		l.fail(call.ID, fmt.Sprintf("failed to record launch of %s: %v", vapiCallID, err))
		return
	}
	l.emitEvent(storeCtx, model.EventCallDispatched, call.ID, vapiCallID)
}

// waitUntil suspends the task until the scheduled instant. Malformed
// timestamps log a warning and launch immediately; past instants launch
// immediately. Naive timestamps are read as UTC.
func (l *Launcher) waitUntil(callID int64, scheduleAt string) {
	target, err := parseScheduleAt(scheduleAt)
	if err != nil {
		l.logger.Warn("failed to parse scheduleAt, launching immediately",
			"call_id", callID, "schedule_at", scheduleAt)
		return
	}

	delay := time.Until(target)
	if delay <= 0 {
		return
	}
	l.logger.Info("delaying launch", "call_id", callID,
		"until", target.Format(time.RFC3339), "delay", delay.String())
	time.Sleep(delay)
}

var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseScheduleAt(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range scheduleLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (l *Launcher) fail(callID int64, reason string) {
	l.metrics.DispatchFailures.Inc()
	l.logger.Error(fmt.Errorf("%s", reason), "call launch failed", "call_id", callID)

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
	defer cancel()

	if err := l.calls.MarkFailed(ctx, callID, reason); err != nil {
		l.logger.Error(err, "failed to mark call failed", "call_id", callID)
		return
	}
	l.emitEvent(ctx, model.EventCallFailed, callID, "")
}

func (l *Launcher) emitEvent(ctx context.Context, eventType string, callID int64, vapiCallID string) {
	payload := fmt.Sprintf(`{"callId":%d`, callID)
	if vapiCallID != "" {
		payload += fmt.Sprintf(`,"vapiCallId":%q`, vapiCallID)
	}
	payload += "}"

	if err := l.outbox.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   []byte(payload),
	}); err != nil {
		l.logger.Error(err, "failed to create outbox event", "call_id", callID, "event_type", eventType)
	}
}

func buildVariableValues(patient *model.Patient) map[string]interface{} {
	return map[string]interface{}{
		// legacy keys kept for assistants still reading the old names
		"name":             patient.Name,
		"gender":           deref(patient.Gender),
		"appointment_date": deref(patient.AppointmentDate),
		"appointment_time": deref(patient.AppointmentTime),
		"doctor_name":      deref(patient.DoctorName),
		"app_date":         deref(patient.AppointmentDate),
		"app_time":         deref(patient.AppointmentTime),
		"full_name":        patient.Name,
		"dob":              deref(patient.DOB),
		"doctor":           deref(patient.DoctorName),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
