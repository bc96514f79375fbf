// Package media is the boundary to screen capture. Encoding frames is the
// capture backend's job; this package turns its output into local tracks
// the negotiation engine can attach.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Default capture hints.
const (
	DefaultResolution = "1920x1080"
	DefaultFPS        = 60
)

var ErrAlreadyCapturing = errors.New("capture already running")

// Hint describes the capture the host would like. Backends may ignore it.
type Hint struct {
	Width  int
	Height int
	FPS    int
}

// ParseHint parses a "WIDTHxHEIGHT" resolution and a frame rate.
func ParseHint(resolution string, fps int) (Hint, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(resolution)), "x")
	if !ok {
		return Hint{}, fmt.Errorf("invalid resolution %q (want WIDTHxHEIGHT)", resolution)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Hint{}, fmt.Errorf("invalid resolution width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Hint{}, fmt.Errorf("invalid resolution height %q", h)
	}
	if fps <= 0 {
		return Hint{}, fmt.Errorf("invalid frame rate %d", fps)
	}
	return Hint{Width: width, Height: height, FPS: fps}, nil
}

func (h Hint) String() string {
	return fmt.Sprintf("%dx%d@%d", h.Width, h.Height, h.FPS)
}

// FrameInterval is the time between frames at the hinted rate.
func (h Hint) FrameInterval() time.Duration {
	if h.FPS <= 0 {
		return time.Second / DefaultFPS
	}
	return time.Second / time.Duration(h.FPS)
}

// Capturer starts and stops screen capture.
type Capturer interface {
	StartCapture(hint Hint) ([]webrtc.TrackLocal, error)
	StopCapture()
}

// FrameSource returns the next encoded frame, or nil when none is ready.
type FrameSource func() []byte

// SampleCapturer exposes one VP8 track. When Source is set, frames are
// pulled from it at the hinted rate and written to the track.
type SampleCapturer struct {
	Source FrameSource

	mu    sync.Mutex
	track *webrtc.TrackLocalStaticSample
	stop  chan struct{}
	done  chan struct{}
}

// StartCapture creates the track and starts the frame pump.
func (c *SampleCapturer) StartCapture(hint Hint) ([]webrtc.TrackLocal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.track != nil {
		return nil, ErrAlreadyCapturing
	}

	streamID := "screen-" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		uuid.NewString(),
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create screen track: %w", err)
	}
	c.track = track

	if c.Source != nil {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.pump(track, hint.FrameInterval(), c.stop, c.done)
	}

	return []webrtc.TrackLocal{track}, nil
}

func (c *SampleCapturer) pump(track *webrtc.TrackLocalStaticSample, interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := c.Source()
			if frame == nil {
				continue
			}
			if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
				return
			}
		}
	}
}

// StopCapture stops the frame pump and releases the track.
func (c *SampleCapturer) StopCapture() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.track, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
