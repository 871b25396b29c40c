package pgwire

import (
	"context"
	"testing"
	"time"
)

func TestNewPoolLazyDoesNotDialUpfront(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 2, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.End()

	stats := pool.Stats()
	if stats.Size != 2 || stats.Idle != 2 || stats.Active != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestNewPoolEagerDialsAllSlots(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 2, false)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.End()

	stats := pool.Stats()
	if stats.Idle != 2 {
		t.Errorf("Idle = %d, want 2 eagerly dialed sessions", stats.Idle)
	}
}

func TestPoolConnectAndRelease(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.End()

	ps, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if stats := pool.Stats(); stats.Active != 1 || stats.Idle != 0 {
		t.Errorf("Stats() while checked out = %+v", stats)
	}

	res, err := ps.QueryArray(ctx, NewQuery("select 1"))
	if err != nil {
		t.Fatalf("QueryArray: %v", err)
	}
	if res.Command != "SELECT" {
		t.Errorf("res.Command = %q", res.Command)
	}

	ps.Release()
	if stats := pool.Stats(); stats.Active != 0 || stats.Idle != 1 {
		t.Errorf("Stats() after Release = %+v", stats)
	}
}

func TestPoolConnectWaitsForRelease(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.End()

	first, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		second, err := pool.Connect(ctx)
		if err != nil {
			done <- err
			return
		}
		second.Release()
		done <- nil
	}()

	select {
	case err := <-done:
		t.Fatalf("second Connect should have blocked until Release, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	first.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiting Connect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting Connect never woke up after Release")
	}
}

func TestPoolConnectContextCancellation(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.End()

	held, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer held.Release()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	if _, err := pool.Connect(waitCtx); err == nil {
		t.Error("expected the waiting Connect to fail once its context expired")
	}
}

func TestPoolEndDrainsAndRejectsDoubleEnd(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 2, false)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	if err := pool.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if stats := pool.Stats(); !stats.Ended {
		t.Error("expected Stats().Ended to be true after End")
	}
	if err := pool.End(); err == nil {
		t.Error("expected PoolClosedError on a second End")
	}
}

func TestPoolConnectAfterEndReopensTransparently(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := pool.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	ps, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect after End should transparently reopen, got: %v", err)
	}
	defer ps.Release()
	if stats := pool.Stats(); stats.Ended {
		t.Error("expected Stats().Ended to be false after a reopening Connect")
	}
}

func TestPoolEndWhileSessionCheckedOutKeepsCapacityInvariant(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	borrowed, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := pool.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	reopened, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect after End: %v", err)
	}

	// Release the pre-End borrow only after the pool has already
	// reopened for a new generation; it must not be folded into the
	// new generation's stack.
	borrowed.Release()

	stats := pool.Stats()
	if got := stats.Idle + stats.Active; got > stats.Size {
		t.Errorf("Idle(%d)+Active(%d) = %d, want <= Size(%d)", stats.Idle, stats.Active, got, stats.Size)
	}

	reopened.Release()
}

func TestPoolCloseWaitsForOutstandingBorrow(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	borrowed, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	closeDone := make(chan error, 1)
	go func() {
		closeDone <- pool.Close(context.Background())
	}()

	select {
	case err := <-closeDone:
		t.Fatalf("Close returned before the outstanding borrow was released, err=%v", err)
	case <-time.After(100 * time.Millisecond):
	}

	borrowed.Release()

	select {
	case err := <-closeDone:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned after the outstanding borrow was released")
	}
}

func TestPoolCloseDeadlineExceededWithBorrowStillOutstanding(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	borrowed, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer borrowed.Release()

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if err := pool.Close(shortCtx); err == nil {
		t.Error("expected Close to report the context deadline while a borrow is still outstanding")
	}
}

func TestPoolMaterializeReconnectsUnhealthySession(t *testing.T) {
	backend := startTestBackend(t)
	cfg := testConfig(t, backend)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, 1, false)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.End()

	ps, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ps.Session.Close()
	ps.Release()

	ps2, err := pool.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect after releasing an unhealthy session: %v", err)
	}
	defer ps2.Release()
	if !ps2.Healthy() {
		t.Error("expected materialize to have reconnected the unhealthy slot")
	}
}
