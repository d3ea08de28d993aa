// Package vapi wraps the Vapi voice-AI call creation API.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendsure/attendsure-api/pkg/circuitbreaker"
)

const DefaultBaseURL = "https://api.vapi.ai"

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cb      *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "vapi",
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	})

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		cb:      cb,
		logger:  logger,
	}
}

// CreateCallRequest describes one outbound phone call.
type CreateCallRequest struct {
	Phone          string
	AssistantID    string
	VariableValues map[string]interface{}
	ScheduleAt     string
	Metadata       map[string]interface{}
	PhoneNumberID  string
}

type createCallBody struct {
	AssistantID        string                 `json:"assistantId"`
	Type               string                 `json:"type"`
	Customer           customer               `json:"customer"`
	AssistantOverrides assistantOverrides     `json:"assistantOverrides"`
	Metadata           map[string]interface{} `json:"metadata"`
	ScheduleAt         string                 `json:"scheduleAt,omitempty"`
	PhoneNumberID      string                 `json:"phoneNumberId,omitempty"`
}

type customer struct {
	Number string `json:"number"`
}

type assistantOverrides struct {
	VariableValues map[string]interface{} `json:"variableValues"`
}

// CreateCallResponse is the provider's call object. Some responses nest the
// call under a "call" key.
type CreateCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Call   *struct {
		ID string `json:"id"`
	} `json:"call"`
}

// CallID returns the provider-issued call identifier regardless of shape.
func (r *CreateCallResponse) CallID() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Call != nil {
		return r.Call.ID
	}
	return ""
}

// CreateOutboundCall submits a call creation request. Any non-2xx response is
// returned as an error carrying the provider's body text.
func (c *Client) CreateOutboundCall(ctx context.Context, req CreateCallRequest) (*CreateCallResponse, error) {
	body := createCallBody{
		AssistantID: req.AssistantID,
		Type:        "outboundPhoneCall",
		Customer:    customer{Number: req.Phone},
		AssistantOverrides: assistantOverrides{
			VariableValues: req.VariableValues,
		},
		Metadata:      req.Metadata,
		ScheduleAt:    req.ScheduleAt,
		PhoneNumberID: req.PhoneNumberID,
	}
	if body.Metadata == nil {
		body.Metadata = map[string]interface{}{}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call request: %w", err)
	}

	c.logger.Info().
		Str("assistant_id", req.AssistantID).
		Bool("has_schedule_at", req.ScheduleAt != "").
		Str("phone_number_id", req.PhoneNumberID).
		Msg("vapi create call")

	var out CreateCallResponse
	err = c.cb.Execute(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build call request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to reach vapi: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read vapi response: %w", err)
		}

		if resp.StatusCode >= 400 {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("body", string(respBody)).
				Msg("vapi error")
			return fmt.Errorf("vapi returned %d: %s", resp.StatusCode, string(respBody))
		}

		if err := json.Unmarshal(respBody, &out); err != nil {
			return fmt.Errorf("failed to decode vapi response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("vapi_call_id", out.CallID()).Msg("vapi call created")
	return &out, nil
}
