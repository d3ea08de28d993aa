package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
)

type fakeProcessor struct {
	err       error
	signature string
	body      []byte
}

func (p *fakeProcessor) ProcessEndOfCall(_ context.Context, signature string, body []byte) error {
	p.signature = signature
	p.body = body
	return p.err
}

func setupRouter(p *fakeProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(p).RegisterRoutes(engine.Group(""))
	return engine
}

func postWebhook(engine *gin.Engine, signature string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vapi/end-of-call", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Vapi-Signature", signature)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestEndOfCallOK(t *testing.T) {
	p := &fakeProcessor{}
	engine := setupRouter(p)

	body := []byte(`{"call": {"id": "ext-1"}}`)
	w := postWebhook(engine, "s3cret", body)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])

	assert.Equal(t, "s3cret", p.signature)
	assert.Equal(t, body, p.body)
}

func TestEndOfCallUnauthorized(t *testing.T) {
	p := &fakeProcessor{err: apperrors.Unauthorized("invalid webhook signature", nil)}
	engine := setupRouter(p)

	w := postWebhook(engine, "wrong", []byte(`{}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEndOfCallBadRequest(t *testing.T) {
	p := &fakeProcessor{err: apperrors.BadRequest("missing call id", nil)}
	engine := setupRouter(p)

	w := postWebhook(engine, "", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "missing call id", resp["message"])
}

func TestEndOfCallInternalError(t *testing.T) {
	p := &fakeProcessor{err: apperrors.Internal(assert.AnError)}
	engine := setupRouter(p)

	w := postWebhook(engine, "", []byte(`{}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
