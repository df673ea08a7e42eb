package worker

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Delivery is one message received from a transport.
type Delivery interface {
	Body() []byte
	// Respond publishes the reply and acknowledges the message.
	Respond(ctx context.Context, reply []byte) error
}

// Source yields deliveries until ctx is cancelled or the transport closes.
type Source interface {
	Receive(ctx context.Context) (Delivery, error)
}

// ErrSourceClosed is returned by a Source that has no more deliveries.
var ErrSourceClosed = errors.New("source closed")

// Serve handles deliveries from src with at most concurrency jobs in
// flight. It returns when ctx is cancelled or src is closed, after every
// started job has replied.
func (w *Worker) Serve(ctx context.Context, src Source, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	var g errgroup.Group
	g.SetLimit(concurrency)

	var recvErr error
	for {
		d, err := src.Receive(ctx)
		if err != nil {
			if !errors.Is(err, ErrSourceClosed) && ctx.Err() == nil {
				recvErr = err
			}
			break
		}
		g.Go(func() error {
			reply := w.HandleRaw(ctx, d.Body())
			if err := d.Respond(context.WithoutCancel(ctx), reply); err != nil {
				w.log.Error("failed to send reply", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return recvErr
}
