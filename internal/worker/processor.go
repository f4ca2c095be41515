package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/config"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/models"
	"notekeeper-zipjobs/internal/queue"
	"notekeeper-zipjobs/internal/telemetry"
)

// Queue is the consumer side of the work queue.
type Queue interface {
	Receive(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id string, delay time.Duration) error
	ExtendLease(ctx context.Context, id string, extension time.Duration) error
	DeadLetter(ctx context.Context, id, reason string) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error)
	ReadyDepth(ctx context.Context) (int64, error)
	InflightDepth(ctx context.Context) (int64, error)
}

// Handler executes one decoded request.
type Handler func(ctx context.Context, req models.ZipJobRequest) error

// Processor drives the worker execution loops.
type Processor struct {
	cfg      config.Config
	queue    Queue
	handler  Handler
	poison   *PoisonArchiver
	log      logging.Logger
	workerID string
}

// NewProcessor builds a processor. poison may be nil to skip archiving
// poisoned bodies.
func NewProcessor(cfg config.Config, q Queue, handler Handler, poison *PoisonArchiver, log logging.Logger, workerID string) *Processor {
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.WorkerPollInterval <= 0 {
		cfg.WorkerPollInterval = time.Second
	}
	return &Processor{
		cfg:      cfg,
		queue:    q,
		handler:  handler,
		poison:   poison,
		log:      log.With("component", "processor", "worker_id", workerID),
		workerID: workerID,
	}
}

// Run starts WorkerConcurrency receive loops plus one housekeeping loop and
// blocks until ctx is cancelled. A job that has started is allowed to finish.
func (p *Processor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.WorkerConcurrency; i++ {
		loop := i
		g.Go(func() error {
			p.receiveLoop(gctx, loop)
			return nil
		})
	}
	g.Go(func() error {
		p.housekeepingLoop(gctx)
		return nil
	})
	p.log.Info(ctx, "processor started", "concurrency", p.cfg.WorkerConcurrency)
	err := g.Wait()
	p.log.Info(ctx, "processor stopped")
	return err
}

func (p *Processor) receiveLoop(ctx context.Context, loop int) {
	log := p.log.With("loop", loop)
	for ctx.Err() == nil {
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			log.Warn(ctx, "receive failed", "error", err)
		}
		if !processed {
			sleep(ctx, p.cfg.WorkerPollInterval)
		}
	}
}

func (p *Processor) housekeepingLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.WorkerPollInterval)
	defer ticker.Stop()
	for {
		p.Housekeep(ctx, time.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Housekeep reclaims expired leases, promotes due redeliveries and refreshes
// the depth gauges.
func (p *Processor) Housekeep(ctx context.Context, now time.Time) {
	if n, err := p.queue.PromoteScheduled(ctx, now, int64(p.cfg.ScheduledBatchSize)); err != nil {
		p.log.Warn(ctx, "promote scheduled", "error", err)
	} else if n > 0 {
		p.log.Debug(ctx, "promoted scheduled messages", "count", n)
	}
	if reclaimed, err := p.queue.RequeueExpired(ctx, now, int64(p.cfg.ReclaimBatchSize)); err != nil {
		p.log.Warn(ctx, "requeue expired", "error", err)
	} else if len(reclaimed) > 0 {
		p.log.Warn(ctx, "reclaimed expired leases", "count", len(reclaimed))
	}
	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
	if n, err := p.queue.InflightDepth(ctx); err == nil {
		telemetry.InFlightGauge.Set(float64(n))
	}
}

// ProcessNext receives and handles at most one message. processed is false
// when the queue was empty or the receive failed.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	d, err := p.queue.Receive(ctx)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}
	// Started jobs run to completion even if the worker is shutting down.
	p.handleDelivery(context.WithoutCancel(ctx), d)
	return true, nil
}

func (p *Processor) handleDelivery(ctx context.Context, d *queue.Delivery) {
	log := p.log.With("message_id", d.ID, "dequeue_count", d.DequeueCount)

	if d.DequeueCount > p.cfg.MaxDequeueCount {
		p.deadLetter(ctx, log, d, fmt.Sprintf("dequeue count %d exceeds %d", d.DequeueCount, p.cfg.MaxDequeueCount))
		return
	}
	req, err := queue.DecodeRequest(d.Body)
	if err != nil {
		p.deadLetter(ctx, log, d, err.Error())
		return
	}
	log = log.With("entity_id", req.EntityID, "job_id", req.JobID)

	stop := p.keepLease(ctx, d.ID)
	start := time.Now()
	err = p.handler(ctx, req)
	stop()

	switch {
	case err == nil:
		telemetry.JobDuration.WithLabelValues("completed").Observe(time.Since(start).Seconds())
		telemetry.JobsCompleted.Inc()
		if aerr := p.queue.Ack(ctx, d.ID); aerr != nil {
			log.Error(ctx, "ack failed; message will be redelivered", "error", aerr)
		}
	case errors.Is(err, common.ErrFatalMessage):
		telemetry.JobDuration.WithLabelValues("poisoned").Observe(time.Since(start).Seconds())
		p.deadLetter(ctx, log, d, err.Error())
	default:
		telemetry.JobDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		telemetry.JobsFailed.Inc()
		delay := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, d.DequeueCount)
		log.Warn(ctx, "zip job attempt failed", "error", err, "retry_in", delay)
		if nerr := p.queue.Nack(ctx, d.ID, delay); nerr != nil {
			log.Error(ctx, "nack failed; lease will expire", "error", nerr)
		}
	}
}

// keepLease extends the message lease at half the visibility timeout until
// the returned stop func is called.
func (p *Processor) keepLease(ctx context.Context, id string) func() {
	interval := p.cfg.VisibilityTimeout / 2
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := p.queue.ExtendLease(ctx, id, p.cfg.VisibilityTimeout); err != nil {
					p.log.Warn(ctx, "extend lease", "message_id", id, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

func (p *Processor) deadLetter(ctx context.Context, log logging.Logger, d *queue.Delivery, reason string) {
	log.Error(ctx, "poisoning message", "reason", reason)
	if p.poison != nil {
		if err := p.poison.Archive(ctx, d.ID, d.Body); err != nil {
			log.Warn(ctx, "archive poison body", "error", err)
		}
	}
	if err := p.queue.DeadLetter(ctx, d.ID, reason); err != nil {
		log.Error(ctx, "dead letter failed", "error", err)
		return
	}
	telemetry.MessagesPoisoned.Inc()
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max || exp > float64(math.MaxInt64) {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
