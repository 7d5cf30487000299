package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fiemcasals/controlador/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxInflight = 8
	DefaultTimeout     = 5 * time.Second
)

// Forwarder pushes commands to the vehicle in the background. At most
// maxInflight deliveries run at once; further commands are dropped since
// the next one carries the full control state anyway.
type Forwarder struct {
	link    VehicleLink
	timeout time.Duration
	slots   chan struct{}
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewForwarder returns a forwarder for link. A nil link disables
// forwarding.
func NewForwarder(link VehicleLink, maxInflight int, timeout time.Duration, logger zerolog.Logger) *Forwarder {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if link == nil {
		logger.Info().Msg("vehicle forwarding disabled")
	} else {
		logger.Info().Str("link", link.String()).Int("max_inflight", maxInflight).Msg("vehicle forwarding enabled")
	}
	return &Forwarder{
		link:    link,
		timeout: timeout,
		slots:   make(chan struct{}, maxInflight),
		logger:  logger,
	}
}

// Submit starts a delivery and returns immediately. It reports whether the
// command was accepted.
func (f *Forwarder) Submit(payload []byte) bool {
	if f == nil || f.link == nil {
		return false
	}
	select {
	case f.slots <- struct{}{}:
	default:
		metrics.RecordForward("dropped", 0)
		f.logger.Debug().Msg("vehicle forward dropped, too many in flight")
		return false
	}

	f.wg.Add(1)
	go func() {
		defer func() {
			<-f.slots
			f.wg.Done()
		}()

		// Not tied to the operator connection; only the timeout bounds it.
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		start := time.Now()
		err := f.link.Send(ctx, payload)
		elapsed := time.Since(start)
		switch {
		case err == nil:
			metrics.RecordForward("ok", elapsed)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			metrics.RecordForward("timeout", elapsed)
			f.logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("vehicle forward timed out")
		default:
			metrics.RecordForward("error", elapsed)
			f.logger.Warn().Err(err).Msg("vehicle forward failed")
		}
	}()
	return true
}

// Wait blocks until every in-flight delivery has finished.
func (f *Forwarder) Wait() {
	if f == nil {
		return
	}
	f.wg.Wait()
}
