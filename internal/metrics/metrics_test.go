package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iconidentify/mediabot/internal/repository"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.Updates.WithLabelValues("message").Inc()
	c.Commands.WithLabelValues("start").Inc()
	c.Commands.WithLabelValues("start").Inc()
	c.ObserveStrategy("tikwm", nil)
	c.ObserveStrategy("tikwm", errors.New("down"))
	c.ObserveStrategy("tikwm", errors.New("down"))

	if got := testutil.ToFloat64(c.Commands.WithLabelValues("start")); got != 2 {
		t.Errorf("commands_total{start} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Downloads.WithLabelValues("tikwm", "failure")); got != 2 {
		t.Errorf("downloads_total{tikwm,failure} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Downloads.WithLabelValues("tikwm", "success")); got != 1 {
		t.Errorf("downloads_total{tikwm,success} = %v, want 1", got)
	}
}

func TestCollector_SetQueue(t *testing.T) {
	c := NewCollector()
	c.SetQueue(&repository.QueueStats{Queued: 3, Processing: 1, Failed: 2})
	c.SetQueue(nil)

	if got := testutil.ToFloat64(c.Jobs.WithLabelValues("queued")); got != 3 {
		t.Errorf("jobs{queued} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Jobs.WithLabelValues("failed")); got != 2 {
		t.Errorf("jobs{failed} = %v, want 2", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.Callbacks.WithLabelValues("anime").Inc()
	c.ObserveJob("tiktok", 3*time.Second, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`mediabot_callbacks_total{feature="anime"} 1`,
		`mediabot_job_duration_seconds_count{kind="tiktok",result="success"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewCollector_Independent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.Updates.WithLabelValues("message").Inc()

	if got := testutil.ToFloat64(b.Updates.WithLabelValues("message")); got != 0 {
		t.Errorf("collectors should not share state, got %v", got)
	}
}
