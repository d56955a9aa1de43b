package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Invitation("sent")
	m.Invitation("sent")
	m.Invitation("resent")
	m.Task("email.activation", "succeeded")
	m.Login("invalid_credentials")
	m.ObserveHTTP(http.MethodGet, "/health", 200, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.invitations.WithLabelValues("sent")); got != 2 {
		t.Errorf("invitations{sent} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tasks.WithLabelValues("email.activation", "succeeded")); got != 1 {
		t.Errorf("tasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("invalid_credentials")); got != 1 {
		t.Errorf("logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.Login("succeeded")

	e := echo.New()
	e.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `medipt_logins_total{outcome="succeeded"} 1`) {
		t.Errorf("login counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("runtime collector missing")
	}
}
