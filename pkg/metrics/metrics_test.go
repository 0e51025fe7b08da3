package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("docs_total", "Docs")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("counter = %d", c.Value())
	}
	if r.Counter("docs_total", "") != c {
		t.Fatal("expected same counter for same name")
	}

	g := r.Gauge("in_flight", "")
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 2 {
		t.Fatalf("gauge = %d", g.Value())
	}
}

func TestKindMismatchPanics(t *testing.T) {
	r := New()
	r.Counter("x", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.Gauge("x", "")
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("runs_total", "status", "done", "tenant", "u1"); got != `runs_total{status="done",tenant="u1"}` {
		t.Fatalf("got %s", got)
	}
	if got := WithLabels("runs_total", "odd"); got != "runs_total" {
		t.Fatalf("got %s", got)
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("runs_total", "status", "failed"), "Runs").Add(2)
	r.Counter(WithLabels("runs_total", "status", "done"), "").Inc()
	h := r.Histogram("latency_seconds", "Latency", []float64{0.5, 0.1, 1})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(5)

	out := r.Render()
	for _, want := range []string{
		"# HELP runs_total Runs\n# TYPE runs_total counter\n",
		"runs_total{status=\"done\"} 1\nruns_total{status=\"failed\"} 2\n",
		"# TYPE latency_seconds histogram\n",
		"latency_seconds_bucket{le=\"0.1\"} 1\n",
		"latency_seconds_bucket{le=\"0.5\"} 2\n",
		"latency_seconds_bucket{le=\"1\"} 2\n",
		"latency_seconds_bucket{le=\"+Inf\"} 3\n",
		"latency_seconds_count 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "runs_total") > strings.Index(out, "latency_seconds") {
		t.Error("families not in registration order")
	}
}

func TestLabelledHistogram(t *testing.T) {
	r := New()
	r.Histogram(WithLabels("stage_seconds", "stage", "parse"), "", []float64{1}).Observe(0.2)
	out := r.Render()
	for _, want := range []string{
		`stage_seconds_bucket{stage="parse",le="1"} 1`,
		`stage_seconds_sum{stage="parse"} 0.2`,
		`stage_seconds_count{stage="parse"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "").Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body %q", rec.Body.String())
	}
}

func TestCollectRuntime(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.CollectRuntime(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	if r.Gauge("ragdesk_go_goroutines", "").Value() <= 0 {
		t.Fatal("goroutine gauge not sampled")
	}
}
