package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pool runs the consumer side: it polls for due jobs and dispatches them to
// up to `workers` concurrent handlers. The queue provides mutual exclusion
// per job via the claim; the pool only bounds concurrency.
type Pool struct {
	queue    *Queue
	proc     *Processor
	workers  int
	pollRate time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewPool(queue *Queue, proc *Processor, workers int, pollRate time.Duration, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &Pool{
		queue:    queue,
		proc:     proc,
		workers:  workers,
		pollRate: pollRate,
		log:      log.With().Str("component", "pool").Logger(),
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting delivery worker pool")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping delivery worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("delivery worker pool stopped")
}

func (p *Pool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollRate)
	defer ticker.Stop()

	sem := make(chan struct{}, p.workers)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.queue.Paused() {
				continue
			}

			jobs, err := p.queue.claimDue(ctx, p.workers)
			if err != nil {
				p.log.Error().Err(err).Msg("failed to claim due jobs")
				continue
			}

			for _, job := range jobs {
				job := job
				sem <- struct{}{}
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					defer func() { <-sem }()

					job.Attempt++
					err := p.proc.Process(ctx, &job)
					p.queue.settle(ctx, &job, err)
				}()
			}
		}
	}
}
