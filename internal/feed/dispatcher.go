// Package feed fans price samples out to per-symbol workers and runs the
// per-tick decision pipeline.
package feed

import (
	"context"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nfoxdev/spreadbot/internal/domain"
)

// Handler processes one price sample.
type Handler func(ctx context.Context, sample domain.SpreadSample)

// Dispatcher routes samples onto a fixed set of worker channels, hashing by
// symbol so every symbol maps to exactly one worker. Samples for one symbol
// are therefore processed strictly in arrival order while distinct symbols
// run concurrently.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger
	queues  []chan domain.SpreadSample
}

// Config holds dispatcher parameters.
type Config struct {
	Workers int
	// Buffer is the per-worker queue capacity. A full queue blocks the
	// producer rather than dropping or reordering samples.
	Buffer int
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
}

// NewDispatcher creates a Dispatcher with the given handler.
func NewDispatcher(cfg Config, handler Handler, logger *slog.Logger) *Dispatcher {
	cfg.withDefaults()
	queues := make([]chan domain.SpreadSample, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan domain.SpreadSample, cfg.Buffer)
	}
	return &Dispatcher{
		handler: handler,
		logger:  logger.With(slog.String("component", "dispatcher")),
		queues:  queues,
	}
}

// Run starts one goroutine per worker queue and blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, queue := range d.queues {
		i, queue := i, queue
		g.Go(func() error {
			d.logger.Debug("worker started", slog.Int("worker", i))
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case sample := <-queue:
					d.handler(ctx, sample)
				}
			}
		})
	}
	return g.Wait()
}

// Offer enqueues a sample for its symbol's worker, blocking while the queue
// is full so backpressure reaches the producer.
func (d *Dispatcher) Offer(ctx context.Context, sample domain.SpreadSample) error {
	queue := d.queues[d.partition(sample.Symbol)]
	select {
	case <-ctx.Done():
		return ctx.Err()
	case queue <- sample:
		return nil
	}
}

func (d *Dispatcher) partition(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(d.queues)))
}
