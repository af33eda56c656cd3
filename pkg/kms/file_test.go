package kms_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChengyuZhu6/drmcore/internal/wire"
	"github.com/ChengyuZhu6/drmcore/pkg/kms"
)

func TestSetClientCapAtomicImpliesUniversalPlanes(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())

	if err := f.SetClientCap(wire.ClientCapAtomic, 1); err != nil {
		t.Fatalf("SetClientCap(ATOMIC, 1): %v", err)
	}
	if !f.AtomicCap() {
		t.Fatalf("expected AtomicCap() to be true after SetClientCap(ATOMIC, 1)")
	}
	if !f.UniversalPlanes() {
		t.Fatalf("enabling ATOMIC must implicitly enable UniversalPlanes")
	}
}

func TestSetClientCapRejectsStereo3D(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	if err := f.SetClientCap(wire.ClientCapStereo3D, 1); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("SetClientCap(STEREO_3D) = %v, want ErrIllegalArgument", err)
	}
}

func TestSetClientCapRejectsUnknownCap(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	if err := f.SetClientCap(0xff, 1); !errors.Is(err, kms.ErrIllegalArgument) {
		t.Fatalf("SetClientCap(unknown) = %v, want ErrIllegalArgument", err)
	}
}

func TestHandleTableRoundTrip(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	ctx := context.Background()

	bo, _, err := dev.CreateDumb(ctx, 32, 32, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	handle, err := f.CreateHandle(bo)
	if err != nil {
		t.Fatalf("CreateHandle: %v", err)
	}
	got, ok := f.ResolveHandle(handle)
	if !ok || got != bo {
		t.Fatalf("ResolveHandle(%d) = (%v, %v), want (%v, true)", handle, got, ok, bo)
	}
	if h, ok := f.GetHandle(bo); !ok || h != handle {
		t.Fatalf("GetHandle(bo) = (%d, %v), want (%d, true)", h, ok, handle)
	}
	if err := f.CloseHandle(handle); err != nil {
		t.Fatalf("CloseHandle: %v", err)
	}
	if _, ok := f.ResolveHandle(handle); ok {
		t.Fatalf("ResolveHandle should fail after CloseHandle")
	}
}

func TestCloseHandleUnknownFails(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	if err := f.CloseHandle(12345); err == nil {
		t.Fatalf("CloseHandle on an unknown handle should fail")
	}
}

func TestFileNonBlockingReadReturnsWouldBlock(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, true, zerolog.Nop())
	_, err := f.Read(context.Background())
	if !errors.Is(err, kms.ErrWouldBlock) {
		t.Fatalf("Read on an empty queue in non-blocking mode = %v, want ErrWouldBlock", err)
	}
}

func TestFileReadBlocksUntilEventPosted(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())

	type result struct {
		ev  wire.EventVblank
		err error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := f.Read(context.Background())
		done <- result{ev, err}
	}()

	f.PostEvent(wire.NewFlipCompleteEvent(0x42, 7, 0))

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Read: %v", r.err)
		}
		if r.ev.UserData != 0x42 {
			t.Fatalf("Read().UserData = %#x, want 0x42", r.ev.UserData)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Read did not return after PostEvent")
	}
}

func TestFileReadHonorsContextCancellation(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.Read(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Read after cancellation = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Read did not return after context cancellation")
	}
}

func TestPollStatusReflectsQueuedEvent(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())

	seq0, mask0 := f.PollStatus()
	if mask0&wire.EPOLLIN != 0 {
		t.Fatalf("PollStatus should report no readiness before any event is posted")
	}

	f.PostEvent(wire.NewFlipCompleteEvent(1, 1, 0))

	seq1, mask1 := f.PollStatus()
	if seq1 <= seq0 {
		t.Fatalf("PollStatus sequence should advance after PostEvent: before=%d after=%d", seq0, seq1)
	}
	if mask1&wire.EPOLLIN == 0 {
		t.Fatalf("PollStatus should report EPOLLIN once an event is queued")
	}
}

func TestPollWaitRejectsFutureSequence(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	seq, _ := f.PollStatus()
	if _, _, err := f.PollWait(context.Background(), seq+10, nil); err == nil {
		t.Fatalf("PollWait should reject a sequence ahead of the file's current sequence")
	}
}

func TestFrameBufferAttachDetach(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())
	ctx := context.Background()

	bo, _, err := dev.CreateDumb(ctx, 16, 16, 32)
	if err != nil {
		t.Fatalf("CreateDumb: %v", err)
	}
	fb, err := dev.CreateFrameBuffer(ctx, bo, 16, 16, wire.FormatXRGB8888, 64, 0)
	if err != nil {
		t.Fatalf("CreateFrameBuffer: %v", err)
	}
	f.AttachFrameBuffer(fb)

	got, ok := f.DetachFrameBuffer(fb.ID())
	if !ok || got != fb {
		t.Fatalf("DetachFrameBuffer(%d) = (%v, %v), want (%v, true)", fb.ID(), got, ok, fb)
	}
	if _, ok := f.DetachFrameBuffer(fb.ID()); ok {
		t.Fatalf("DetachFrameBuffer should fail the second time for the same id")
	}
}

func TestCloseWakesBlockedRead(t *testing.T) {
	dev, _, _, _ := newTestDevice(t)
	f := kms.NewFile(dev, nil, false, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := f.Read(context.Background())
		done <- err
	}()
	f.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Read after Close should return an error, not a dequeued event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not wake a blocked Read")
	}
}
