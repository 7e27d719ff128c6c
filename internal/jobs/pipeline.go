package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-jukebox/internal/stats"
)

type HandlerFunc func(ctx context.Context, job Job) error

// Pipeline drains a Queue with a fixed pool of workers. With a single worker
// jobs are applied in the order they were submitted.
type Pipeline struct {
	log      *log.Logger
	queue    Queue
	stats    stats.StatsProvider
	workers  int
	handlers map[Kind]HandlerFunc

	// OnError receives the failure of every job whose handler returned an
	// error or panicked. The job is acknowledged either way.
	OnError func(job Job, err error)
}

func NewPipeline(logger *log.Logger, queue Queue, st stats.StatsProvider, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		log:      logger,
		queue:    queue,
		stats:    st,
		workers:  workers,
		handlers: make(map[Kind]HandlerFunc),
	}
}

// Handle registers fn for jobs of the given kind. It must be called before
// Run.
func (p *Pipeline) Handle(kind Kind, fn HandlerFunc) {
	p.handlers[kind] = fn
}

func (p *Pipeline) Submit(ctx context.Context, kind Kind, roomId, userId string, payload any) (Job, error) {
	job, err := NewJob(kind, roomId, userId, payload)
	if err != nil {
		return Job{}, fmt.Errorf("new job: %w", err)
	}

	if err := p.queue.Push(ctx, job); err != nil {
		return Job{}, fmt.Errorf("push job: %w", err)
	}
	return job, nil
}

// Run recovers jobs left in flight by a previous run and then processes jobs
// until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	n, err := p.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if n > 0 {
		p.log.Printf("recovered %d unacknowledged jobs", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()

	return nil
}

func (p *Pipeline) work(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.log.Printf("worker %d: pop: %v", id, err)
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.process(ctx, job)
	}
}

func (p *Pipeline) process(ctx context.Context, job Job) {
	defer func() {
		if err := p.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
			p.log.Printf("ack job %s: %v", job.Id, err)
		}
	}()

	fn, ok := p.handlers[job.Kind]
	if !ok {
		p.log.Printf("no handler for job kind %q, dropping job %s", job.Kind, job.Id)
		return
	}

	if err := p.invoke(ctx, fn, job); err != nil {
		p.stats.Incr(stats.JobsFailed)
		p.log.Printf("job %s (%s) failed: %v", job.Id, job.Kind, err)
		if p.OnError != nil {
			p.OnError(job, err)
		}
		return
	}

	p.stats.Incr(stats.JobsProcessed)
}

func (p *Pipeline) invoke(ctx context.Context, fn HandlerFunc, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return fn(ctx, job)
}
