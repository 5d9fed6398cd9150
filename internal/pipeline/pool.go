package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped means the pool no longer accepts work.
var ErrStopped = errors.New("pipeline is stopped")

// pool is a fixed set of workers draining one FIFO backlog. The backlog is
// never refused: jobs past the soft limit are kept and reported as overflow
// so a burst delays documents instead of stranding them.
type pool struct {
	workers   int
	softLimit int
	handle    func(context.Context, job)

	mu      sync.Mutex
	ready   *sync.Cond
	backlog []job
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func newPool(workers, softLimit int, handle func(context.Context, job)) *pool {
	p := &pool{
		workers:   workers,
		softLimit: softLimit,
		handle:    handle,
	}
	p.ready = sync.NewCond(&p.mu)
	return p
}

// start launches the workers. Jobs run with ctx until stop drains the backlog.
func (p *pool) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

func (p *pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		p.handle(ctx, j)
	}
}

// next blocks until a job is available. It reports false once the pool is
// stopped and the backlog is empty.
func (p *pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.backlog) == 0 && !p.stopped {
		p.ready.Wait()
	}
	if len(p.backlog) == 0 {
		return job{}, false
	}
	j := p.backlog[0]
	p.backlog[0] = job{}
	p.backlog = p.backlog[1:]
	return j, true
}

// submit appends j to the backlog. overflow reports that the backlog was
// already at its soft limit.
func (p *pool) submit(j job) (overflow bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false, ErrStopped
	}
	overflow = len(p.backlog) >= p.softLimit
	p.backlog = append(p.backlog, j)
	p.ready.Signal()
	return overflow, nil
}

// stop refuses new work and waits for the backlog to drain.
func (p *pool) stop() {
	p.mu.Lock()
	p.stopped = true
	p.ready.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *pool) depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}
