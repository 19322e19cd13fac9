package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestHealthzReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	handleHealthz(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestStatusForKindMapsNotFound(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusForKind(core.KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusForKind(core.KindFatal))
}

func TestParseWindowRejectsMissingTimestamps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics/cost", nil)
	_, err := parseWindow(req)
	assert.Error(t, err)
}

func TestParseWindowAcceptsRFC3339Range(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics/cost?since=2026-07-01T00:00:00Z&until=2026-07-02T00:00:00Z", nil)
	window, err := parseWindow(req)
	assert.NoError(t, err)
	assert.True(t, window.Until.After(window.Since))
}
