package media

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Stats summarizes a drained remote track.
type Stats struct {
	Packets uint64
	Bytes   uint64
	Lost    uint64
	LastSeq uint16
	Started time.Time
	Ended   time.Time
}

// Drain reads RTP from a remote track until ctx ends or the track stops.
// The interceptors only process packets that are read.
func Drain(ctx context.Context, track *webrtc.TrackRemote, logger zerolog.Logger) Stats {
	return drain(ctx, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}, logger)
}

func drain(ctx context.Context, read func() (*rtp.Packet, error), logger zerolog.Logger) Stats {
	st := Stats{Started: time.Now()}
	first := true
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("track drain ctx done")
			st.Ended = time.Now()
			return st
		default:
		}
		pkt, err := read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("read RTP stopped")
			}
			st.Ended = time.Now()
			return st
		}
		if !first {
			if gap := pkt.SequenceNumber - st.LastSeq; gap > 1 && gap < 1<<15 {
				st.Lost += uint64(gap - 1)
			}
		}
		first = false
		st.Packets++
		st.Bytes += uint64(len(pkt.Payload))
		st.LastSeq = pkt.SequenceNumber
	}
}
