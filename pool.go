package alierdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Pool tracks how many databases currently hold a connection and which
// distinct connectors are in use. When the count drops back to zero every
// connector implementing Ender is released. This used to be hidden
// module-level state in the original design; it is an explicit object here,
// shared between DB instances through Options.Pool (DefaultPool unless told
// otherwise), and locked because Go callers really do run in parallel.
type Pool struct {
	mu    sync.Mutex
	count int
	conns map[Connector]int
}

// DefaultPool is the pool DB instances share when none is supplied.
var DefaultPool = NewPool()

func NewPool() *Pool {
	return &Pool{conns: make(map[Connector]int)}
}

// Count returns the number of live connections across all databases on this
// pool.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Acquire connects c and registers it as in use.
func (p *Pool) Acquire(ctx context.Context, c Connector) (bool, error) {
	ok, err := c.Connect(ctx)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.count++
	p.conns[c]++
	p.mu.Unlock()
	return ok, nil
}

// Release disconnects c. When this was the last live connection on the
// pool, every distinct registered connector that implements Ender is ended;
// the resulting errors are aggregated into one. The aggregate is a
// recognized database error only when every constituent is one — a single
// foreign error makes the whole teardown an internal failure.
func (p *Pool) Release(ctx context.Context, c Connector) error {
	p.mu.Lock()
	if p.count == 0 {
		p.mu.Unlock()
		return ErrPoolNotConnected
	}
	p.count--
	if p.conns[c] > 0 {
		p.conns[c]--
	}
	last := p.count == 0
	var enders []Connector
	if last {
		for conn := range p.conns {
			enders = append(enders, conn)
		}
		p.conns = make(map[Connector]int)
	}
	p.mu.Unlock()

	err := c.Disconnect(ctx)

	if last {
		if terr := endAll(ctx, enders); terr != nil {
			return errors.Join(err, terr)
		}
	}
	return err
}

func endAll(ctx context.Context, conns []Connector) error {
	var errs []error
	for _, conn := range conns {
		ender, ok := conn.(Ender)
		if !ok {
			continue
		}
		if err := ender.End(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	for _, err := range errs {
		if !IsDBError(err) {
			return fmt.Errorf("alierdb: pool teardown failed: %w", joined)
		}
	}
	return NewDBError("disconnect", "pool teardown failed", joined)
}
