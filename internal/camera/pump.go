package camera

import (
	"context"
	"fmt"
	"image"
	"iter"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fiemcasals/controlador/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	DefaultFPS = 25
	MinFPS     = 1
	MaxFPS     = 60
)

type Options struct {
	DefaultIndex   int
	DefaultFPS     float64
	JPEGQuality    int
	FailureBackoff time.Duration
	ReopenInterval time.Duration
	// Stereo serves only the left half of side-by-side frames.
	Stereo bool
}

func (o Options) withDefaults() Options {
	if o.DefaultFPS <= 0 {
		o.DefaultFPS = DefaultFPS
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = 80
	}
	if o.FailureBackoff <= 0 {
		o.FailureBackoff = 50 * time.Millisecond
	}
	if o.ReopenInterval <= 0 {
		o.ReopenInterval = time.Second
	}
	return o
}

type Stats struct {
	Frames          int64 `json:"frames"`
	Placeholders    int64 `json:"placeholders"`
	CaptureFailures int64 `json:"capture_failures"`
	OverlayFailures int64 `json:"overlay_failures"`
	Viewers         int64 `json:"viewers"`
	OpenIndex       int   `json:"open_index"`
	Detector        bool  `json:"detector"`
}

// Pump shares one FrameSource among any number of viewers. Captures are
// serialized by captureMu, which is held only for open and read.
type Pump struct {
	source   FrameSource
	detector Detector
	logger   zerolog.Logger
	opts     Options
	now      func() time.Time

	// detectMu serializes inference; the network is not reentrant.
	detectMu sync.Mutex

	placeholder []byte

	captureMu      sync.Mutex
	openIndex      int
	failedIndex    int
	lastFailedOpen time.Time

	done      chan struct{}
	closeOnce sync.Once

	frames          atomic.Int64
	placeholders    atomic.Int64
	captureFailures atomic.Int64
	overlayFailures atomic.Int64
	viewers         atomic.Int64
}

// NewPump builds a pump around source. detector may be nil.
func NewPump(source FrameSource, detector Detector, opts Options, logger zerolog.Logger) (*Pump, error) {
	opts = opts.withDefaults()
	placeholder, err := placeholderJPEG(opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("build placeholder: %w", err)
	}
	if source == nil {
		source = unavailableSource{}
	}
	return &Pump{
		source:      source,
		detector:    detector,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
		placeholder: Chunk(placeholder),
		openIndex:   -1,
		failedIndex: -1,
		done:        make(chan struct{}),
	}, nil
}

func (p *Pump) DefaultIndex() int { return p.opts.DefaultIndex }

// ClampFPS maps a requested rate onto [MinFPS, MaxFPS]; non-positive
// requests use the configured default.
func (p *Pump) ClampFPS(fps float64) float64 {
	if fps <= 0 {
		fps = p.opts.DefaultFPS
	}
	switch {
	case fps < MinFPS:
		return MinFPS
	case fps > MaxFPS:
		return MaxFPS
	default:
		return fps
	}
}

// Frames returns the viewer's multipart chunk sequence. It is lazy,
// infinite and single-use: ranging over it a second time yields nothing.
// It ends when ctx is done, the consumer stops, or the pump is closed.
func (p *Pump) Frames(ctx context.Context, index int, fps float64) iter.Seq[[]byte] {
	interval := time.Duration(float64(time.Second) / p.ClampFPS(fps))
	var used atomic.Bool

	return func(yield func([]byte) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}
		p.viewers.Add(1)
		metrics.AddViewers(1)
		defer func() {
			p.viewers.Add(-1)
			metrics.AddViewers(-1)
		}()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-timer.C:
			}

			chunk, failed := p.next(index)
			emitted := p.now()
			if !yield(chunk) {
				return
			}

			wait := interval - p.now().Sub(emitted)
			if failed && wait < p.opts.FailureBackoff {
				wait = p.opts.FailureBackoff
			}
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		}
	}
}

// next produces one chunk. failed reports that the placeholder was used
// because the capture failed.
func (p *Pump) next(index int) (chunk []byte, failed bool) {
	img, err := p.capture(index)
	if err != nil {
		p.captureFailures.Add(1)
		p.placeholders.Add(1)
		metrics.RecordCaptureFailure()
		metrics.RecordFrame(true)
		p.logger.Debug().Err(err).Int("camera", index).Msg("capture failed, serving placeholder")
		return p.placeholder, true
	}

	if p.opts.Stereo {
		img = LeftHalf(img)
	}
	img = p.overlay(img)

	data, err := encodeJPEG(img, p.opts.JPEGQuality)
	if err != nil {
		p.placeholders.Add(1)
		metrics.RecordFrame(true)
		p.logger.Warn().Err(err).Msg("frame encode failed")
		return p.placeholder, false
	}
	p.frames.Add(1)
	metrics.RecordFrame(false)
	return Chunk(data), false
}

func (p *Pump) overlay(img image.Image) image.Image {
	if p.detector == nil {
		return img
	}
	p.detectMu.Lock()
	select {
	case <-p.done:
		p.detectMu.Unlock()
		return img
	default:
	}
	detections, err := p.detector.Detect(img)
	p.detectMu.Unlock()
	if err != nil {
		p.overlayFailures.Add(1)
		metrics.RecordOverlayFailure()
		p.logger.Debug().Err(err).Msg("detection failed, serving raw frame")
		return img
	}
	return Annotate(img, detections)
}

func (p *Pump) capture(index int) (image.Image, error) {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()

	select {
	case <-p.done:
		return nil, ErrUnavailable
	default:
	}

	if p.openIndex != index || !p.source.IsOpen() {
		if err := p.reopenLocked(index); err != nil {
			return nil, err
		}
	}

	img, err := p.source.Read()
	if err != nil {
		// Drop the handle; the next reopen is throttled like a failed open.
		_ = p.source.Close()
		p.openIndex = -1
		p.failedIndex = index
		p.lastFailedOpen = p.now()
		return nil, fmt.Errorf("read camera %d: %w", index, err)
	}
	return img, nil
}

func (p *Pump) reopenLocked(index int) error {
	if index == p.failedIndex && p.now().Sub(p.lastFailedOpen) < p.opts.ReopenInterval {
		return fmt.Errorf("camera %d reopen throttled: %w", index, ErrUnavailable)
	}
	if p.openIndex >= 0 || p.source.IsOpen() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn().Err(err).Int("camera", p.openIndex).Msg("close camera")
		}
		p.openIndex = -1
	}
	if err := p.source.Open(index); err != nil {
		p.failedIndex = index
		p.lastFailedOpen = p.now()
		return fmt.Errorf("open camera %d: %w", index, err)
	}
	p.failedIndex = -1
	p.openIndex = index
	p.logger.Info().Int("camera", index).Msg("camera opened")
	return nil
}

func (p *Pump) Stats() Stats {
	p.captureMu.Lock()
	open := p.openIndex
	p.captureMu.Unlock()

	return Stats{
		Frames:          p.frames.Load(),
		Placeholders:    p.placeholders.Load(),
		CaptureFailures: p.captureFailures.Load(),
		OverlayFailures: p.overlayFailures.Load(),
		Viewers:         p.viewers.Load(),
		OpenIndex:       open,
		Detector:        p.detector != nil,
	}
}

// Close ends every open sequence and releases the camera and detector.
func (p *Pump) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)

		p.captureMu.Lock()
		err = p.source.Close()
		p.openIndex = -1
		p.captureMu.Unlock()

		if p.detector != nil {
			p.detectMu.Lock()
			defer p.detectMu.Unlock()
			if derr := p.detector.Close(); derr != nil && err == nil {
				err = derr
			}
		}
	})
	return err
}

// Chunk frames one JPEG as a multipart/x-mixed-replace part.
func Chunk(jpegData []byte) []byte {
	header := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: " + strconv.Itoa(len(jpegData)) + "\r\n\r\n"
	out := make([]byte, 0, len(header)+len(jpegData)+2)
	out = append(out, header...)
	out = append(out, jpegData...)
	return append(out, "\r\n"...)
}
