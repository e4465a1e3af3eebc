package system

import (
	"context"
	"fmt"
	"testing"
)

type recordingService struct {
	name    string
	events  *[]string
	failOn  string
	started bool
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	if s.failOn == "start" {
		return fmt.Errorf("start failed")
	}
	s.started = true
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	s.started = false
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, events[i], want[i], events)
		}
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	var events []string
	m := NewManager()
	first := &recordingService{name: "first", events: &events}
	if err := m.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "bad", events: &events, failOn: "start"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start failure")
	}
	if first.started {
		t.Fatalf("expected first service stopped after unwind")
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "dup", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", events: &events}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
