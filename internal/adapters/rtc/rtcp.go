package rtc

import (
	"errors"
	"io"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type rtcpReader interface {
	ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error)
}

// ReadRTCP drains incoming RTCP for a local track until the sender stops.
// Interceptors only see packets that are read. onPLI fires on keyframe requests.
func ReadRTCP(sender *webrtc.RTPSender, logger zerolog.Logger, onPLI func()) {
	if sender == nil {
		return
	}
	readRTCP(sender, logger, onPLI)
}

func readRTCP(r rtcpReader, logger zerolog.Logger, onPLI func()) {
	for {
		pkts, _, err := r.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debug().Err(err).Msg("rtcp read stopped")
			}
			return
		}
		for _, p := range pkts {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if onPLI != nil {
					onPLI()
				}
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				logger.Trace().Msg("remb received")
			}
		}
	}
}
