package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, context.Background(), &Event{Type: "x"})
	m := &mockEventEmitter{}
	EmitAsync(m, context.Background(), nil)
	time.Sleep(10 * time.Millisecond)
	if m.count() != 0 {
		t.Error("nil event emitted")
	}
}

func TestEmitAsync_SurvivesRequestCancel(t *testing.T) {
	m := &mockEventEmitter{done: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	EmitAsync(m, ctx, &Event{Type: EventLogin})
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not emitted")
	}
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a := &mockEventEmitter{emitErr: boom}
	b := &mockEventEmitter{}
	em := Multi(a, nil, b)
	if err := em.Emit(context.Background(), &Event{Type: "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d, %d", a.count(), b.count())
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventDriftAnalyzed, "auth_service", map[string]any{"similarity": 55.0})
	if e.Type != EventDriftAnalyzed || e.Source != "auth_service" {
		t.Errorf("event = %+v", e)
	}
	if string(e.Metadata) != `{"similarity":55}` {
		t.Errorf("metadata = %s", e.Metadata)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if e := NewEvent("x", "", func() {}); e.Metadata != nil {
		t.Error("unmarshalable metadata kept")
	}
}
