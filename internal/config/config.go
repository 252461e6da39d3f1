package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/roulette/internal/app/candidates"
	"github.com/dkeye/roulette/internal/app/negotiation"
	"github.com/dkeye/roulette/internal/app/session"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

const EnvPrefix = "ROULETTE"

var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun.l.google.com:5349",
	"stun:stun1.l.google.com:3478",
}

type Media struct {
	Video     bool   `mapstructure:"video"`
	Audio     bool   `mapstructure:"audio"`
	VideoFile string `mapstructure:"video_file"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	RoomURL   string `mapstructure:"room_url"`
	SignalURL string `mapstructure:"signal_url"`

	Room        string `mapstructure:"room"`
	Token       string `mapstructure:"token"`
	UserID      string `mapstructure:"user_id"`
	DisplayName string `mapstructure:"display_name"`

	ICEServers    []string `mapstructure:"ice_servers"`
	ICEUsername   string   `mapstructure:"ice_username"`
	ICECredential string   `mapstructure:"ice_credential"`

	Media Media `mapstructure:"media"`

	HandshakeTimeout time.Duration          `mapstructure:"handshake_timeout"`
	RequestTimeout   time.Duration          `mapstructure:"request_timeout"`
	KeepalivePeriod  time.Duration          `mapstructure:"keepalive_period"`
	CandidateRetry   candidates.RetryPolicy `mapstructure:"candidate_retry"`
	Rejoin           session.RejoinLimit    `mapstructure:"rejoin"`
	Transport        string                 `mapstructure:"transport"`
	MDNS             bool                   `mapstructure:"mdns"`
	LockFile         string                 `mapstructure:"lock_file"`
}

// flags maps command-line flags to config keys.
var flags = map[string]string{
	"room-url":     "room_url",
	"signal-url":   "signal_url",
	"room":         "room",
	"token":        "token",
	"user-id":      "user_id",
	"name":         "display_name",
	"ice-server":   "ice_servers",
	"video":        "media.video",
	"audio":        "media.audio",
	"video-file":   "media.video_file",
	"transport":    "transport",
	"log-level":    "log_level",
	"mdns":         "mdns",
	"lock-file":    "lock_file",
	"req-timeout":  "request_timeout",
	"dial-timeout": "handshake_timeout",
}

// RegisterFlags defines the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("room-url", "", "room server base URL (http or https)")
	fs.String("signal-url", "", "signaling websocket URL (derived from --room-url when empty)")
	fs.StringP("room", "r", "", "room to join")
	fs.StringP("token", "t", "", "bearer token")
	fs.String("user-id", "", "user id (random when empty)")
	fs.StringP("name", "n", "", "display name (random when empty)")
	fs.StringSlice("ice-server", nil, "STUN/TURN URL, repeatable")
	fs.Bool("video", true, "send video")
	fs.Bool("audio", false, "send audio")
	fs.String("video-file", "", "IVF file to send instead of the test pattern")
	fs.String("transport", "", "how answers and candidates are sent: http or stream")
	fs.String("log-level", "", "trace, debug, info, warn or error")
	fs.Bool("mdns", false, "enable mDNS candidates")
	fs.String("lock-file", "", "single-instance lock path")
	fs.Duration("req-timeout", 0, "room API request timeout")
	fs.Duration("dial-timeout", 0, "signaling handshake timeout")
}

// setDefaults also registers every key, so AutomaticEnv sees it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("room_url", "http://localhost:8080")
	v.SetDefault("signal_url", "")
	v.SetDefault("room", string(domain.DefaultRoom))
	v.SetDefault("token", "")
	v.SetDefault("user_id", "")
	v.SetDefault("display_name", "")
	v.SetDefault("ice_servers", DefaultICEServers)
	v.SetDefault("media.video", true)
	v.SetDefault("media.audio", false)
	v.SetDefault("media.video_file", "")
	v.SetDefault("ice_username", "")
	v.SetDefault("ice_credential", "")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("keepalive_period", "30s")
	v.SetDefault("candidate_retry.max_attempts", 5)
	v.SetDefault("candidate_retry.initial_interval", "100ms")
	v.SetDefault("candidate_retry.max_interval", "2s")
	v.SetDefault("rejoin.limit", 3)
	v.SetDefault("rejoin.window", "30s")
	v.SetDefault("transport", string(negotiation.TransportHTTP))
	v.SetDefault("mdns", false)
	v.SetDefault("lock_file", lockPath())
}

func lockPath() string {
	return os.TempDir() + "/roulette.lock"
}

// Load reads config/config.<CONFIG_ENV>.yaml, ROULETTE_* variables and the
// flags of fs that were set, in increasing priority.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		for name, key := range flags {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Str("room_url", cfg.RoomURL).
		Str("room", cfg.Room).
		Str("transport", cfg.Transport).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) fill() error {
	if c.SignalURL == "" && c.RoomURL != "" {
		s, err := DeriveSignalURL(c.RoomURL)
		if err != nil {
			return err
		}
		c.SignalURL = s
	}
	room, err := domain.NormalizeRoom(c.Room)
	if err != nil {
		return err
	}
	c.Room = string(room)
	if c.DisplayName == "" {
		c.DisplayName = petname.Generate(2, "-")
	}
	if len(c.ICEServers) == 0 {
		c.ICEServers = append([]string(nil), DefaultICEServers...)
	}
	return nil
}

// DeriveSignalURL maps http(s)://host/base to ws(s)://host/base/ws.
func DeriveSignalURL(roomURL string) (string, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return "", fmt.Errorf("parse room_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("room_url %q: scheme must be http or https", roomURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.RoomURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("room_url %q: want http(s)://host", c.RoomURL))
	}
	if u, err := url.Parse(c.SignalURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("signal_url %q: want ws(s)://host", c.SignalURL))
	}
	for _, s := range c.ICEServers {
		if !validICEScheme(s) {
			errs = append(errs, fmt.Errorf("ice server %q: want stun:, stuns:, turn: or turns:", s))
		}
	}
	if err := negotiation.Transport(c.Transport).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CandidateRetry.MaxAttempts < 1 {
		errs = append(errs, errors.New("candidate_retry.max_attempts must be at least 1"))
	}
	if c.Rejoin.Limit < 0 || (c.Rejoin.Limit > 0 && c.Rejoin.Window <= 0) {
		errs = append(errs, errors.New("rejoin.window must be positive when rejoin.limit is set"))
	}
	if c.HandshakeTimeout <= 0 || c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if !c.Media.Video && !c.Media.Audio {
		errs = append(errs, errors.New("at least one of media.video and media.audio must be enabled"))
	}
	return errors.Join(errs...)
}

func validICEScheme(s string) bool {
	for _, p := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// WebRTCICEServers groups the configured URLs into one ICE server entry.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{
		URLs:       c.ICEServers,
		Username:   c.ICEUsername,
		Credential: c.ICECredential,
	}}
}

func (c *Config) Constraints() core.Constraints {
	return core.Constraints{Video: c.Media.Video, Audio: c.Media.Audio}
}

// Identity builds the joining identity. The token is required.
func (c *Config) Identity() (domain.Identity, error) {
	return domain.NewIdentity(domain.UserID(c.UserID), c.DisplayName, c.Token)
}
