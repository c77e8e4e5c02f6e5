package log

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture", "session.cborlog")

	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	events := []Event{
		{
			Timestamp: time.Unix(100, 0),
			Category:  CategoryFault,
			Message:   "latch tripped",
			Fault:     &FaultEvent{Kind: "OCP", Tripped: true, SuspectRelay: 2},
		},
		{
			Timestamp: time.Unix(101, 0),
			Category:  CategoryMessage,
			Direction: DirectionOut,
			Message:   "frame published",
			Frame:     &FrameEvent{Size: 42, RelayMask: 0b000100, Forced: true},
		},
	}
	for _, ev := range events {
		fl.Log(ev)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	if got[0].Fault == nil || got[0].Fault.Kind != "OCP" || !got[0].Fault.Tripped {
		t.Errorf("fault event = %+v", got[0].Fault)
	}
	if got[1].Frame == nil || got[1].Frame.RelayMask != 0b000100 || !got[1].Frame.Forced {
		t.Errorf("frame event = %+v", got[1].Frame)
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b []Event
	ml := NewMultiLogger(
		loggerFunc(func(ev Event) { a = append(a, ev) }),
		nil,
		loggerFunc(func(ev Event) { b = append(b, ev) }),
	)

	ml.Log(Event{Category: CategoryState, Message: "x"})

	if len(a) != 1 || len(b) != 1 {
		t.Errorf("fan-out counts = %d, %d, want 1, 1", len(a), len(b))
	}
}

type loggerFunc func(Event)

func (f loggerFunc) Log(ev Event) { f(ev) }
