package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// sentRecorder captures commands handed to the send function.
type sentRecorder struct {
	mu   sync.Mutex
	cmds []*wire.Command
	err  error
}

func (r *sentRecorder) send(cmd *wire.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *sentRecorder) all() []*wire.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*wire.Command(nil), r.cmds...)
}

func frameWithMask(mask uint8) *wire.Frame {
	return &wire.Frame{Mode: wire.ModePassthrough, RelayMask: mask}
}

func TestSetFlipsMirrorAndSends(t *testing.T) {
	rec := &sentRecorder{}
	s := New(Config{Send: rec.send})
	defer s.Stop()

	if err := s.Set("relay-brake", true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if on, _ := s.Relay("relay-brake"); !on {
		t.Error("mirror did not flip speculatively")
	}
	cmds := rec.all()
	if len(cmds) != 1 {
		t.Fatalf("sent %d commands, want 1", len(cmds))
	}
	if cmds[0].Type != wire.CommandRelay || cmds[0].RelayID != "relay-brake" || !*cmds[0].State {
		t.Errorf("sent command = %+v", cmds[0])
	}
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", s.PendingCount())
	}
}

func TestSetUnknownRelay(t *testing.T) {
	s := New(Config{Send: (&sentRecorder{}).send})
	defer s.Stop()

	if err := s.Set("relay-bogus", true); !errors.Is(err, ErrUnknownRelay) {
		t.Errorf("Set() error = %v, want ErrUnknownRelay", err)
	}
}

func TestFrameConfirmsPending(t *testing.T) {
	rec := &sentRecorder{}
	var errCount int
	var mu sync.Mutex
	s := New(Config{
		AckTimeout: 50 * time.Millisecond,
		Send:       rec.send,
		OnError: func(string, error) {
			mu.Lock()
			errCount++
			mu.Unlock()
		},
	})
	defer s.Stop()

	if err := s.Set("relay-brake", true); err != nil {
		t.Fatal(err)
	}

	// Next frame shows the brake bit set: the write is confirmed.
	s.ApplyFrame(frameWithMask(1 << 2))

	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after confirming frame", s.PendingCount())
	}
	if on, _ := s.Relay("relay-brake"); !on {
		t.Error("mirror lost the confirmed state")
	}

	// Past the ack deadline nothing should fire.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if errCount != 0 {
		t.Errorf("OnError fired %d times for a confirmed write", errCount)
	}
}

func TestAckTimeoutRollsBack(t *testing.T) {
	rec := &sentRecorder{}
	errs := make(chan string, 4)
	s := New(Config{
		AckTimeout: 30 * time.Millisecond,
		Send:       rec.send,
		OnError: func(relayID string, err error) {
			if errors.Is(err, ErrAckTimeout) {
				errs <- relayID
			}
		},
	})
	defer s.Stop()

	if err := s.Set("relay-left", true); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-errs:
		if id != "relay-left" {
			t.Errorf("error for %q, want relay-left", id)
		}
	case <-time.After(time.Second):
		t.Fatal("rollback never reported")
	}

	if on, _ := s.Relay("relay-left"); on {
		t.Error("mirror not rolled back after timeout")
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after rollback", s.PendingCount())
	}

	// Exactly one error for one write.
	select {
	case <-errs:
		t.Error("rollback reported more than once")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestSupersessionRejectsOldPending(t *testing.T) {
	rec := &sentRecorder{}
	errs := make(chan error, 4)
	s := New(Config{
		AckTimeout: 40 * time.Millisecond,
		Send:       rec.send,
		OnError:    func(_ string, err error) { errs <- err },
	})
	defer s.Stop()

	if err := s.Set("relay-tail", true); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("relay-tail", false); err != nil {
		t.Fatal(err)
	}

	// The old record rejects right away with a per-relay error.
	select {
	case err := <-errs:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("error = %v, want ErrSuperseded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("superseded record never rejected")
	}

	// Only the newest record remains.
	if s.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", s.PendingCount())
	}
	if on, _ := s.Relay("relay-tail"); on {
		t.Error("mirror should show the newest speculative state")
	}

	// A frame showing tail off confirms the newest write. The
	// superseded record must not also fire its timer.
	s.ApplyFrame(frameWithMask(0))

	select {
	case err := <-errs:
		t.Errorf("unexpected error %v after supersession", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFramesAreAuthoritative(t *testing.T) {
	s := New(Config{Send: (&sentRecorder{}).send})
	defer s.Stop()

	// Device reports left and right on with no pending writes.
	s.ApplyFrame(frameWithMask(0b000011))

	relays := s.Relays()
	if !relays["relay-left"] || !relays["relay-right"] {
		t.Error("mirror did not adopt frame state")
	}
	if relays["relay-brake"] {
		t.Error("mirror shows state the frame did not carry")
	}

	// A later frame clears everything, again without pendings.
	s.ApplyFrame(frameWithMask(0))
	for id, on := range s.Relays() {
		if on {
			t.Errorf("relay %s still on after all-off frame", id)
		}
	}
}

func TestFrameOverridesUnconfirmedWrite(t *testing.T) {
	rec := &sentRecorder{}
	s := New(Config{AckTimeout: time.Hour, Send: rec.send})
	defer s.Stop()

	if err := s.Set("relay-marker", true); err != nil {
		t.Fatal(err)
	}

	// The device publishes marker off: the frame wins the tick even
	// though the write is still pending.
	s.ApplyFrame(frameWithMask(0))

	if on, _ := s.Relay("relay-marker"); on {
		t.Error("frame did not override the speculative state")
	}
	// The pending record survives; a later frame may still confirm it.
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", s.PendingCount())
	}
}

func TestHeartbeatStaleAndRecovery(t *testing.T) {
	rec := &sentRecorder{}
	stale := make(chan struct{}, 2)
	s := New(Config{
		HeartbeatTimeout: 40 * time.Millisecond,
		Send:             rec.send,
		OnStale:          func() { stale <- struct{}{} },
	})
	defer s.Stop()

	if err := s.Connected(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-stale:
	case <-time.After(time.Second):
		t.Fatal("watchdog never fired")
	}
	if !s.Stale() {
		t.Error("Stale() = false after watchdog fired")
	}

	// A frame recovers the link and re-arms the watchdog.
	s.ApplyFrame(frameWithMask(0))
	if s.Stale() {
		t.Error("Stale() = true right after a frame")
	}

	select {
	case <-stale:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not re-arm after recovery")
	}
}

func TestConnectedSendsRefresh(t *testing.T) {
	rec := &sentRecorder{}
	s := New(Config{Send: rec.send})
	defer s.Stop()

	if err := s.Connected(); err != nil {
		t.Fatal(err)
	}

	cmds := rec.all()
	if len(cmds) != 1 || cmds[0].Type != wire.CommandRefresh {
		t.Errorf("sent %+v, want one refresh command", cmds)
	}
}

func TestSendFailureRollsBackImmediately(t *testing.T) {
	rec := &sentRecorder{err: errors.New("link down")}
	s := New(Config{Send: rec.send})
	defer s.Stop()

	if err := s.Set("relay-aux", true); err == nil {
		t.Fatal("Set() succeeded with a failing send")
	}
	if on, _ := s.Relay("relay-aux"); on {
		t.Error("mirror kept the speculative state after send failure")
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after send failure", s.PendingCount())
	}
}

func TestStopRejectsPendings(t *testing.T) {
	rec := &sentRecorder{}
	errs := make(chan error, 4)
	s := New(Config{
		AckTimeout: time.Hour,
		Send:       rec.send,
		OnError:    func(_ string, err error) { errs <- err },
	})

	if err := s.Set("relay-right", true); err != nil {
		t.Fatal(err)
	}
	s.Stop()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrStoreStopped) {
			t.Errorf("error = %v, want ErrStoreStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not reject the pending write")
	}

	if err := s.Set("relay-right", true); !errors.Is(err, ErrStoreStopped) {
		t.Errorf("Set() after Stop error = %v, want ErrStoreStopped", err)
	}
}
