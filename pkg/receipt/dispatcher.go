package receipt

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("receipt queue full")

// Dispatcher queues receipts and sends them from a single background worker.
type Dispatcher struct {
	queue  chan Receipt
	sender Sender
	log    *zap.Logger
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(sender Sender, bufferSize int, log *zap.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:  make(chan Receipt, bufferSize),
		sender: sender,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				d.log.Info("draining receipts before shutdown", zap.Int("remaining", len(d.queue)))
				for len(d.queue) > 0 {
					d.send(context.Background(), <-d.queue)
				}
				return
			case r := <-d.queue:
				d.send(d.ctx, r)
			}
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, r Receipt) {
	if err := d.sender.Send(ctx, r.Phone, r.Text()); err != nil {
		d.log.Error("failed to send receipt", zap.Error(err), zap.Stringer("payment_id", r.PaymentID))
	}
}

// Notify enqueues r without blocking.
func (d *Dispatcher) Notify(r Receipt) error {
	select {
	case d.queue <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}
