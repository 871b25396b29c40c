package pgwire

import (
	"context"
	"sync"
)

// Pool is a bounded multiple-producer/single-consumer borrow queue of
// Sessions built against one ConnectionConfig template (spec.md §3/§4.10).
type Pool struct {
	cfg  *ConnectionConfig
	size int
	lazy bool

	mu      sync.Mutex
	stack   []*poolSlot
	waiters []chan *poolSlot
	ended   bool
	ready   chan struct{}

	// generation increments on every End/Close and again on the Connect
	// that reopens an ended pool.
	// outstanding counts borrows per generation still on loan, and
	// drainCh holds a channel Close(ctx) can wait on for a generation's
	// outstanding count to reach zero (spec.md §8's "outstanding_borrows
	// + available ≤ size" invariant, which a slot from a prior
	// generation re-entering the current stack on Release would break).
	generation  int
	outstanding map[int]int
	drainCh     map[int]chan struct{}
}

// poolSlot is one of the pool's `size` logical positions: either
// unconstructed (session == nil, not yet dialed), idle in the stack, or
// on loan to a caller.
type poolSlot struct {
	session *Session
}

// NewPool constructs a Pool of size Sessions against cfg. If lazy is
// false, all `size` sessions are dialed eagerly before NewPool returns;
// otherwise slots are constructed on first checkout.
func NewPool(ctx context.Context, cfg *ConnectionConfig, size int, lazy bool) (*Pool, error) {
	p := &Pool{
		cfg:         cfg,
		size:        size,
		lazy:        lazy,
		ready:       make(chan struct{}),
		outstanding: map[int]int{},
		drainCh:     map[int]chan struct{}{},
	}

	if lazy {
		for i := 0; i < size; i++ {
			p.stack = append(p.stack, &poolSlot{})
		}
		close(p.ready)
		return p, nil
	}

	for i := 0; i < size; i++ {
		sess, err := Connect(ctx, cfg)
		if err != nil {
			for _, slot := range p.stack {
				if slot.session != nil {
					slot.session.Close()
				}
			}
			return nil, err
		}
		p.stack = append(p.stack, &poolSlot{session: sess})
	}
	close(p.ready)
	return p, nil
}

// PoolSession is a checked-out Session; Release returns it to the pool.
type PoolSession struct {
	*Session
	pool       *Pool
	slot       *poolSlot
	generation int
}

// Connect awaits pool readiness, then pops a live session from the
// stack — constructing it if the slot was never dialed, or reconnecting
// it if the liveness check fails — and returns a PoolSession. If no
// session is immediately available, Connect suspends until a Release,
// resuming callers in FIFO order (spec.md §5).
func (p *Pool) Connect(ctx context.Context) (*PoolSession, error) {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.ended {
		// Transparent reopen (spec.md §4.10): a Connect after End/Close
		// reinitializes the pool instead of staying closed forever. The
		// generation bump means any session from before End/Close that
		// is Released later is recognized as stale and kept out of this
		// new generation's stack (see Release).
		p.ended = false
		p.generation++
		for i := 0; i < p.size; i++ {
			p.stack = append(p.stack, &poolSlot{})
		}
	}
	gen := p.generation

	if len(p.stack) > 0 {
		slot := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		p.mu.Unlock()
		return p.materialize(ctx, slot, gen)
	}

	wait := make(chan *poolSlot, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	select {
	case slot := <-wait:
		return p.materialize(ctx, slot, gen)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// materialize dials slot.session if unconstructed, or reconnects it if
// the liveness predicate (Session.Healthy) fails, then records the
// checkout against gen so a later Release can tell whether the slot
// still belongs to the pool's current generation.
func (p *Pool) materialize(ctx context.Context, slot *poolSlot, gen int) (*PoolSession, error) {
	if slot.session == nil || !slot.session.Healthy() {
		if slot.session != nil {
			slot.session.Close()
		}
		sess, err := Connect(ctx, p.cfg)
		if err != nil {
			p.mu.Lock()
			p.stack = append(p.stack, slot)
			p.mu.Unlock()
			return nil, err
		}
		slot.session = sess
	}
	p.mu.Lock()
	p.outstanding[gen]++
	p.mu.Unlock()
	return &PoolSession{Session: slot.session, pool: p, slot: slot, generation: gen}, nil
}

// Release returns the session to the pool, handing it directly to the
// oldest waiting Connect call if one exists, otherwise pushing it back
// onto the stack (spec.md §9's "Pool borrow waiters"). A session
// borrowed before an intervening End/Close belongs to a prior
// generation: it is closed outright rather than folded into the
// current generation's stack, which would otherwise let a pool of
// size N end up tracking more than N live sessions (spec.md §8).
func (ps *PoolSession) Release() {
	p := ps.pool
	p.mu.Lock()
	if ps.generation != p.generation {
		p.outstanding[ps.generation]--
		var drained chan struct{}
		if p.outstanding[ps.generation] <= 0 {
			delete(p.outstanding, ps.generation)
			if ch, ok := p.drainCh[ps.generation]; ok {
				drained = ch
				delete(p.drainCh, ps.generation)
			}
		}
		p.mu.Unlock()
		if ps.slot.session != nil {
			ps.slot.session.Close()
		}
		if drained != nil {
			close(drained)
		}
		return
	}

	p.outstanding[ps.generation]--
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w <- ps.slot
		return
	}
	p.stack = append(p.stack, ps.slot)
	p.mu.Unlock()
}

// Stats is a point-in-time snapshot of pool occupancy, for the
// pgwireadmin status endpoint and for metrics.Collector.UpdatePoolStats.
type Stats struct {
	Size    int
	Idle    int
	Active  int
	Waiting int
	Ended   bool
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := len(p.stack)
	waiting := len(p.waiters)
	return Stats{
		Size:    p.size,
		Idle:    idle,
		Active:  p.size - idle,
		Waiting: waiting,
		Ended:   p.ended,
	}
}

// End immediately drains the idle stack and closes every constructed
// idle session, leaving the pool in an ended state, without waiting for
// sessions currently on loan. Those still-outstanding sessions are
// tagged with the pool's prior generation by Connect/materialize, so
// their eventual Release does not get folded into the reinitialized
// pool's stack (see Release) — End alone does not guarantee
// outstanding_borrows==0 by the time it returns; use Close(ctx) for
// that. A subsequent Connect transparently reinitializes the pool
// (lazily: all slots start unconstructed again). Calling End on an
// already-ended pool returns PoolClosedError.
func (p *Pool) End() error {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return &PoolClosedError{}
	}
	p.ended = true
	p.generation++
	stack := p.stack
	p.stack = nil
	p.waiters = nil
	p.mu.Unlock()

	for _, slot := range stack {
		if slot.session != nil {
			slot.session.Close()
		}
	}
	return nil
}

// Close performs a graceful shutdown (SPEC_FULL.md §12): it ends the
// pool exactly as End does, then waits — bounded by ctx — for every
// session borrowed before this call to be Released before returning,
// so in-flight queries are not torn out from under their connections.
// Sessions still outstanding when ctx expires are left for their
// eventual Release to close (see the stale-generation branch of
// Release); Close itself never force-closes a borrowed session.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return &PoolClosedError{}
	}
	p.ended = true
	gen := p.generation
	p.generation++
	stack := p.stack
	p.stack = nil
	p.waiters = nil

	remaining := p.outstanding[gen]
	var drained chan struct{}
	if remaining > 0 {
		drained = make(chan struct{})
		p.drainCh[gen] = drained
	}
	p.mu.Unlock()

	for _, slot := range stack {
		if slot.session != nil {
			slot.session.Close()
		}
	}

	if drained == nil {
		return nil
	}
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
