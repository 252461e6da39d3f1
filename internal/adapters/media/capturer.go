// Package media provides local sample sources for the session and drains
// remote tracks.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/roulette/internal/core"
)

const (
	DefaultFrameInterval = 33 * time.Millisecond
	opusFrameInterval    = 20 * time.Millisecond
)

var ErrNoMedia = errors.New("no media requested")

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Capturer produces local tracks from an IVF file or from a synthetic
// pattern when no file is set.
type Capturer struct {
	// VideoFile is an IVF (VP8/VP9/AV1) file that is looped while the stream lives.
	VideoFile     string
	FrameInterval time.Duration
}

var _ core.Capturer = (*Capturer)(nil)

func NewCapturer(videoFile string) *Capturer {
	return &Capturer{VideoFile: videoFile, FrameInterval: DefaultFrameInterval}
}

func (c *Capturer) Capture(ctx context.Context, cons core.Constraints) (*core.Stream, error) {
	if !cons.Video && !cons.Audio {
		return nil, ErrNoMedia
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	logger := log.With().Str("module", "media").Str("stream", streamID).Logger()

	var (
		tracks  []webrtc.TrackLocal
		sources []func(context.Context)
	)

	if cons.Video {
		track, src, err := c.videoSource(streamID, logger)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
		sources = append(sources, src)
	}
	if cons.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("new audio track: %w", err)
		}
		tracks = append(tracks, track)
		sources = append(sources, func(ctx context.Context) {
			pump(ctx, track, opusFrameInterval, func() ([]byte, error) { return opusSilence, nil }, logger)
		})
	}

	runCtx, cancel := context.WithCancel(context.Background())
	var wg conc.WaitGroup
	for _, src := range sources {
		wg.Go(func() { src(runCtx) })
	}

	logger.Info().Int("tracks", len(tracks)).Msg("capture started")
	return core.NewStream(streamID, tracks, func() {
		cancel()
		wg.Wait()
		logger.Info().Msg("capture stopped")
	}), nil
}

func (c *Capturer) videoSource(streamID string, logger zerolog.Logger) (webrtc.TrackLocal, func(context.Context), error) {
	if c.VideoFile == "" {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("new video track: %w", err)
		}
		frames := newPattern()
		return track, func(ctx context.Context) {
			pump(ctx, track, c.interval(), frames.next, logger)
		}, nil
	}

	src, err := openIVF(c.VideoFile)
	if err != nil {
		return nil, nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: src.mime}, "video", streamID,
	)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("new video track: %w", err)
	}
	interval := src.interval
	if interval <= 0 {
		interval = c.interval()
	}
	return track, func(ctx context.Context) {
		defer src.Close()
		pump(ctx, track, interval, src.next, logger)
	}, nil
}

func (c *Capturer) interval() time.Duration {
	if c.FrameInterval <= 0 {
		return DefaultFrameInterval
	}
	return c.FrameInterval
}

// pump writes one sample per tick until ctx ends or next fails.
func pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, every time.Duration, next func() ([]byte, error), logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		data, err := next()
		if err != nil {
			logger.Error().Err(err).Str("track_id", track.ID()).Msg("sample source failed")
			return
		}
		if err := track.WriteSample(media.Sample{Data: data, Duration: every}); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			logger.Debug().Err(err).Str("track_id", track.ID()).Msg("write sample")
		}
	}
}

// pattern yields small VP8-shaped payloads. A real decoder will not render
// them; they keep RTP flowing for connectivity checks.
type pattern struct {
	n int
}

func newPattern() *pattern { return &pattern{} }

func (p *pattern) next() ([]byte, error) {
	p.n++
	frame := make([]byte, 64)
	// keyframe every 30 frames: bit 0 of the first byte clear
	if p.n%30 != 1 {
		frame[0] = 0x01
	}
	for i := 1; i < len(frame); i++ {
		frame[i] = byte(p.n + i)
	}
	return frame, nil
}

type ivfSource struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	r        *ivfreader.IVFReader
	mime     string
	interval time.Duration
}

func openIVF(path string) (*ivfSource, error) {
	s := &ivfSource{path: path}
	hdr, err := s.reopen()
	if err != nil {
		return nil, err
	}
	switch hdr.FourCC {
	case "VP80":
		s.mime = webrtc.MimeTypeVP8
	case "VP90":
		s.mime = webrtc.MimeTypeVP9
	case "AV01":
		s.mime = webrtc.MimeTypeAV1
	default:
		s.Close()
		return nil, fmt.Errorf("ivf %s: unsupported fourcc %q", path, hdr.FourCC)
	}
	if hdr.TimebaseDenominator > 0 {
		s.interval = time.Duration(float64(hdr.TimebaseNumerator) / float64(hdr.TimebaseDenominator) * float64(time.Second))
	}
	return s, nil
}

func (s *ivfSource) reopen() (*ivfreader.IVFFileHeader, error) {
	if s.f != nil {
		_ = s.f.Close()
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ivf: %w", err)
	}
	r, hdr, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	s.f, s.r = f, r
	return hdr, nil
}

// next returns the next frame and loops back to the start at EOF.
func (s *ivfSource) next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, _, err := s.r.ParseNextFrame()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if _, err := s.reopen(); err != nil {
			return nil, err
		}
		frame, _, err = s.r.ParseNextFrame()
	}
	return frame, err
}

func (s *ivfSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
}
