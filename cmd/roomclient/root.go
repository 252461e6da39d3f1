package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/roulette/internal/adapters/media"
	"github.com/dkeye/roulette/internal/adapters/roomapi"
	"github.com/dkeye/roulette/internal/adapters/rtc"
	signaling "github.com/dkeye/roulette/internal/adapters/signal"
	"github.com/dkeye/roulette/internal/app/events"
	"github.com/dkeye/roulette/internal/app/negotiation"
	"github.com/dkeye/roulette/internal/app/session"
	"github.com/dkeye/roulette/internal/config"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

var ErrAlreadyRunning = errors.New("another session is running")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roomclient",
		Short:         "Join a room and keep one WebRTC connection to it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	join := &cobra.Command{
		Use:   "join [room]",
		Short: "Join a room and stay until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("room", args[0]); err != nil {
					return err
				}
			}
			err := runJoin(cmd.Context(), cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			}
			return err
		},
	}
	config.RegisterFlags(join.Flags())
	root.AddCommand(join)
	return root
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func runJoin(parent context.Context, cmd *cobra.Command) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel)

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, cfg.LockFile)
	}
	defer func() { _ = lock.Unlock() }()

	id, err := cfg.Identity()
	if err != nil {
		return err
	}

	api, err := rtc.NewAPI(rtc.APIOptions{
		PLIInterval:   rtc.DefaultPLIInterval,
		MDNS:          cfg.MDNS,
		LoggerFactory: rtc.NewLoggerFactory(),
	})
	if err != nil {
		return err
	}

	cons := cfg.Constraints()
	facade := session.New(session.Options{
		ICEServers:     cfg.WebRTCICEServers(),
		Constraints:    &cons,
		Transport:      negotiation.Transport(cfg.Transport),
		RequestTimeout: cfg.RequestTimeout,
		Retry:          cfg.CandidateRetry,
		Rejoin:         cfg.Rejoin,
	}, session.Deps{
		Dial: func(ctx context.Context, sid, token string) (core.SignalChannel, error) {
			ch, err := signaling.Dial(ctx, signaling.Options{
				URL:              cfg.SignalURL,
				SessionID:        sid,
				HandshakeTimeout: cfg.HandshakeTimeout,
				Keepalive:        cfg.KeepalivePeriod,
			}, token)
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		RoomAPI: func(token string) (core.RoomAPI, error) {
			c, err := roomapi.New(cfg.RoomURL, token, roomapi.WithTimeout(cfg.RequestTimeout))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Peers: func(sid string) core.PeerFactory {
			return rtc.NewFactory(api, sid)
		},
		Capturer: media.NewCapturer(cfg.Media.VideoFile),
	})
	defer func() { _ = facade.Close() }()

	room := domain.RoomID(cfg.Room)
	h, err := facade.CreateSession(ctx, room, id)
	if err != nil {
		return err
	}
	watch(h)
	printStatus("joined", fmt.Sprintf("%s as %s (session %s)", h.Room(), id.DisplayName, h.ID))

	rejoin := make(chan os.Signal, 1)
	signal.Notify(rejoin, syscall.SIGHUP)
	defer signal.Stop(rejoin)

	return stay(ctx, h, rejoin, func(ctx context.Context) error {
		_, err := facade.CreateSession(ctx, h.Room(), id)
		return err
	})
}

// joined is the part of *session.Handle the wait loop needs.
type joined interface {
	Room() domain.RoomID
	Done() <-chan struct{}
	Close() error
}

// stay keeps the session until ctx ends or the connection closes. Every
// value on rejoin restarts ICE; only terminal rejoin errors end the loop.
func stay(ctx context.Context, h joined, rejoin <-chan os.Signal, restart func(context.Context) error) error {
	for {
		select {
		case <-ctx.Done():
			printStatus("leaving", string(h.Room()))
			return h.Close()
		case <-h.Done():
			printStatus("closed", "connection ended")
			return nil
		case <-rejoin:
			if err := restart(ctx); err != nil {
				log.Error().Err(err).Msg("rejoin failed")
				printError("rejoin", err)
				if session.IsTerminal(err) {
					return err
				}
				continue
			}
			printStatus("rejoined", "ICE restarted")
		}
	}
}

func watch(h *session.Handle) {
	h.Events.Subscribe(events.StateChanged, func(e events.Event) {
		printState(e.State)
	})
	h.Events.Subscribe(events.TrackAdded, func(e events.Event) {
		printStatus("track", fmt.Sprintf("+ %s %s", e.Track.Kind(), e.Track.ID()))
	})
	h.Events.Subscribe(events.TrackRemoved, func(e events.Event) {
		printStatus("track", fmt.Sprintf("- %s %s", e.Track.Kind(), e.Track.ID()))
	})
	h.Events.Subscribe(events.CandidateDropped, func(e events.Event) {
		printError("candidate", e.Err)
	})
	h.Events.Subscribe(events.NegotiationFailed, func(e events.Event) {
		printError("negotiation", e.Err)
	})
}
