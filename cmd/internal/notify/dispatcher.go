package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherConfig controls buffering and per-message delivery time.
type DispatcherConfig struct {
	BufferSize  int
	SendTimeout time.Duration
}

// DefaultDispatcherConfig returns the production baseline.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BufferSize:  256,
		SendTimeout: 10 * time.Second,
	}
}

type job struct {
	kind Kind
	msg  Message
}

// Dispatcher is a Notifier that queues messages and delivers them from a
// single background goroutine. When the buffer is full the message is
// dropped and counted. Close drains what is already queued.
type Dispatcher struct {
	cfg    DispatcherConfig
	sender Sender
	log    *slog.Logger

	ch        chan job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher delivering through sender.
func NewDispatcher(cfg DispatcherConfig, sender Sender, log *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultDispatcherConfig().SendTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		log:    log,
		ch:     make(chan job, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case j := <-d.ch:
			d.deliver(j)
		case <-d.done:
			for {
				select {
				case j := <-d.ch:
					d.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, j.msg); err != nil {
		d.failed.Add(1)
		d.log.Warn("notify.dispatch.send.fail", "kind", string(j.kind), "err", err)
		return
	}
	d.log.Debug("notify.dispatch.send.ok", "kind", string(j.kind))
}

func (d *Dispatcher) enqueue(j job) error {
	if d.closed.Load() {
		return ErrClosed
	}
	select {
	case d.ch <- j:
		return nil
	case <-d.done:
		return ErrClosed
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// WelcomeEmail implements Notifier.
func (d *Dispatcher) WelcomeEmail(_ context.Context, name, email string) error {
	return d.enqueue(job{kind: KindWelcome, msg: WelcomeMessage(name, email)})
}

// CancelationEmail implements Notifier.
func (d *Dispatcher) CancelationEmail(_ context.Context, name, email string) error {
	return d.enqueue(job{kind: KindCancelation, msg: CancelationMessage(name, email)})
}

// Close stops accepting messages and waits for queued ones to be delivered,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
	})

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed returns how many deliveries returned an error.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }
