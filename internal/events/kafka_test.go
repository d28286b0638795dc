package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/metrics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w}
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), []audit.Change{{
		ChangeID:   "c1",
		UserID:     "alice",
		EntityType: audit.EntityPropertyState,
		EntityID:   "prop_001",
		Field:      audit.FieldClosedFloors,
		OldValue:   json.RawMessage(`[]`),
		NewValue:   json.RawMessage(`[3,4]`),
		Timestamp:  ts,
	}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "alice/property_state/prop_001" {
		t.Errorf("key = %q", msg.Key)
	}
	if !msg.Time.Equal(ts) {
		t.Errorf("time = %v, want %v", msg.Time, ts)
	}

	var got audit.Change
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if got.ChangeID != "c1" || string(got.NewValue) != "[3,4]" {
		t.Errorf("value = %+v", got)
	}
}

func TestPublishEmpty(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	p := &Publisher{w: w}

	if err := p.Publish(context.Background(), nil); err != nil {
		t.Errorf("publish nothing: %v", err)
	}
}

func TestPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Publisher{w: w}

	err := p.Publish(context.Background(), []audit.Change{{ChangeID: "c1"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestNewPublisherDefaultTopic(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "", nil)
	kw, ok := p.w.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer is %T", p.w)
	}
	if kw.Topic != DefaultTopic {
		t.Errorf("topic = %q, want %q", kw.Topic, DefaultTopic)
	}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestNewPublisherAsync(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := NewPublisher([]string{"localhost:9092"}, "ptc.test", m)
	kw := p.w.(*kafka.Writer)
	if !kw.Async || kw.Completion == nil {
		t.Fatal("writer should deliver in the background")
	}

	kw.Completion(make([]kafka.Message, 2), errors.New("broker down"))
	kw.Completion(make([]kafka.Message, 1), nil)

	out := scrape(t, m)
	for _, want := range []string{
		`ptc_audit_events_published_total{result="error"} 2`,
		`ptc_audit_events_published_total{result="ok"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPublishAsyncLeavesMetricsToCompletion(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := &Publisher{w: &fakeWriter{}, metrics: m, async: true}

	if err := p.Publish(context.Background(), []audit.Change{{ChangeID: "c1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if out := scrape(t, m); strings.Contains(out, `ptc_audit_events_published_total{result="ok"}`) {
		t.Errorf("queued write counted as delivered:\n%s", out)
	}
}

func TestPublishSyncRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := &Publisher{w: &fakeWriter{err: errors.New("broker down")}, metrics: m}

	if err := p.Publish(context.Background(), []audit.Change{{ChangeID: "c1"}}); err == nil {
		t.Fatal("expected error")
	}
	if out := scrape(t, m); !strings.Contains(out, `ptc_audit_events_published_total{result="error"} 1`) {
		t.Errorf("failed write not counted:\n%s", out)
	}
}
