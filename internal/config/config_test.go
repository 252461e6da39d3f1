package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roulette/internal/domain"
)

// chdir moves into an empty directory so no config file is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.RoomURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.SignalURL)
	assert.Equal(t, string(domain.DefaultRoom), cfg.Room)
	assert.Equal(t, DefaultICEServers, cfg.ICEServers)
	assert.True(t, cfg.Media.Video)
	assert.False(t, cfg.Media.Audio)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.KeepalivePeriod)
	assert.Equal(t, 5, cfg.CandidateRetry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.CandidateRetry.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.CandidateRetry.MaxInterval)
	assert.Equal(t, "http", cfg.Transport)
	assert.NotEmpty(t, cfg.DisplayName)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_ENV", "test")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte(`
room_url: https://rooms.example.org/base
room: from-file
display_name: file-name
transport: stream
candidate_retry:
  max_attempts: 3
media:
  audio: true
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	t.Setenv("ROULETTE_TOKEN", "env-token")
	t.Setenv("ROULETTE_REQUEST_TIMEOUT", "3s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--room", "from-flag"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "wss://rooms.example.org/base/ws", cfg.SignalURL)
	assert.Equal(t, "from-flag", cfg.Room)
	assert.Equal(t, "file-name", cfg.DisplayName)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "stream", cfg.Transport)
	assert.Equal(t, 3, cfg.CandidateRetry.MaxAttempts)
	assert.True(t, cfg.Media.Audio)
	assert.True(t, cfg.Media.Video)

	id, err := cfg.Identity()
	require.NoError(t, err)
	assert.Equal(t, "env-token", id.Token)
	assert.NotEmpty(t, id.ID)
}

func TestDeriveSignalURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":        "ws://localhost:8080/ws",
		"https://example.org":          "wss://example.org/ws",
		"https://example.org/api/":     "wss://example.org/api/ws",
		"http://example.org/x?debug=1": "ws://example.org/x/ws",
	}
	for in, want := range cases {
		got, err := DeriveSignalURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := DeriveSignalURL("ftp://example.org")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RoomURL:          "http://localhost:8080",
			SignalURL:        "ws://localhost:8080/ws",
			ICEServers:       DefaultICEServers,
			Transport:        "http",
			HandshakeTimeout: time.Second,
			RequestTimeout:   time.Second,
			Media:            Media{Video: true},
		}
	}
	c := valid()
	c.CandidateRetry.MaxAttempts = 1
	require.NoError(t, c.Validate())

	cases := map[string]func(*Config){
		"room url":   func(c *Config) { c.RoomURL = "localhost" },
		"signal url": func(c *Config) { c.SignalURL = "http://localhost/ws" },
		"ice scheme": func(c *Config) { c.ICEServers = []string{"http://stun.example.org"} },
		"transport":  func(c *Config) { c.Transport = "smoke" },
		"retry":      func(c *Config) { c.CandidateRetry.MaxAttempts = 0 },
		"timeout":    func(c *Config) { c.RequestTimeout = 0 },
		"media":      func(c *Config) { c.Media = Media{} },
	}
	for name, mutate := range cases {
		c := valid()
		c.CandidateRetry.MaxAttempts = 1
		mutate(c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestWebRTCICEServers(t *testing.T) {
	c := &Config{ICEServers: []string{"turn:turn.example.org"}, ICEUsername: "u", ICECredential: "p"}
	servers := c.WebRTCICEServers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"turn:turn.example.org"}, servers[0].URLs)
	assert.Equal(t, "u", servers[0].Username)
}
