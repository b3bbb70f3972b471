package datapoint

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sentCommand struct {
	deviceID  string
	dp        int
	kind      ValueKind
	wireValue any
}

type fakeSender struct {
	sent []sentCommand
	err  error
}

func (s *fakeSender) SendDatapoint(_ context.Context, deviceID string, dp int, kind ValueKind, wireValue any) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentCommand{deviceID, dp, kind, wireValue})
	return nil
}

func newTestDispatcher(sender *fakeSender, limiter *Limiter) *Dispatcher {
	if limiter == nil {
		limiter = NewLimiter(LimiterOptions{Quota: 100, Window: time.Minute})
	}
	return NewDispatcher(DispatcherOptions{
		Mapper:  NewMapper(MapperOptions{}),
		Limiter: limiter,
		Sender:  sender,
	})
}

func TestDispatch_EncodesBeforeSending(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, nil)

	err := d.Dispatch(context.Background(), "light-01", 3, KindNumeric, 0.5)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(sender.sent))
	}
	cmd := sender.sent[0]
	if cmd.deviceID != "light-01" || cmd.dp != 3 {
		t.Errorf("command = %+v", cmd)
	}
	if cmd.wireValue != 500.0 {
		t.Errorf("wire value = %v, want 500 (dim 0.5 rescaled)", cmd.wireValue)
	}
}

func TestDispatch_RateLimitFailsFast(t *testing.T) {
	sender := &fakeSender{}
	limiter := NewLimiter(LimiterOptions{Quota: 1, Window: time.Minute})
	d := newTestDispatcher(sender, limiter)

	ctx := context.Background()
	if err := d.Dispatch(ctx, "light-01", 1, KindBool, true); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}

	err := d.Dispatch(ctx, "light-01", 1, KindBool, false)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Dispatch() error = %v, want ErrRateLimited", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sender called %d times, want 1 (rejected call must not reach transport)", len(sender.sent))
	}
}

func TestDispatch_TransportErrorWrapped(t *testing.T) {
	sender := &fakeSender{err: errors.New("radio busy")}
	d := newTestDispatcher(sender, nil)

	err := d.Dispatch(context.Background(), "light-01", 1, KindBool, true)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Errorf("Dispatch() error = %v, want ErrDispatchFailed", err)
	}
}

func TestDispatch_ConcurrentDevices(t *testing.T) {
	sender := &fakeSender{}
	limiter := NewLimiter(LimiterOptions{Quota: 2, Window: time.Minute})
	d := newTestDispatcher(sender, limiter)

	ctx := context.Background()

	// The limiter is process-wide: two different devices share the quota.
	if err := d.Dispatch(ctx, "light-01", 1, KindBool, true); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := d.Dispatch(ctx, "light-02", 1, KindBool, true); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := d.Dispatch(ctx, "light-03", 1, KindBool, true); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third device error = %v, want ErrRateLimited (shared quota)", err)
	}
}
