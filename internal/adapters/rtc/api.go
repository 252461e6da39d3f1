package rtc

import (
	"fmt"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

const DefaultPLIInterval = 3 * time.Second

type APIOptions struct {
	// PLIInterval is how often a keyframe is requested on received video.
	// Zero disables the interval PLI interceptor.
	PLIInterval time.Duration
	// MDNS enables mDNS candidate queries and host name obfuscation.
	MDNS bool
	// Net replaces the OS network, e.g. with a vnet for tests.
	Net               transport.Net
	IncludeLoopback   bool
	LoggerFactory     logging.LoggerFactory
	DisconnectedAfter time.Duration
	FailedAfter       time.Duration
	KeepAliveInterval time.Duration
}

// NewAPI builds a pion API with default codecs and interceptors.
func NewAPI(opts APIOptions) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, i); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	if opts.PLIInterval > 0 {
		pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(opts.PLIInterval))
		if err != nil {
			return nil, fmt.Errorf("new interval pli: %w", err)
		}
		i.Add(pli)
	}

	se := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	} else {
		se.LoggerFactory = NewLoggerFactory()
	}
	if !opts.MDNS {
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	if opts.DisconnectedAfter > 0 && opts.FailedAfter > 0 {
		se.SetICETimeouts(opts.DisconnectedAfter, opts.FailedAfter, opts.KeepAliveInterval)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}
