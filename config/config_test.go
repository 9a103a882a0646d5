package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
auth:
  jwt:
    secret: s3cret
`

func TestParse_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "ride-hub", cfg.Logging.Service)
	assert.Equal(t, "dev", cfg.Logging.Env)
	assert.Equal(t, "std", cfg.Logging.Backend)
	assert.Equal(t, "HS256", cfg.Auth.JWT.Alg)
	assert.Equal(t, 30*time.Second, cfg.Auth.JWT.ClockSkew)
	assert.Equal(t, 256, cfg.Transport.SendQueue)
	assert.Equal(t, int64(64<<10), cfg.Transport.MaxMessageSize)
	assert.Equal(t, 60*time.Second, cfg.Transport.PongWait)
	assert.Equal(t, 54*time.Second, cfg.Transport.PingInterval)
	assert.Zero(t, cfg.Location.TTL)
	assert.Zero(t, cfg.Location.PruneInterval)
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
transport:
  pingInterval: 5s
  pongWait: 15s
location:
  ttl: 2m
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 15*time.Second, cfg.Transport.PongWait)
	assert.Equal(t, 2*time.Minute, cfg.Location.TTL)
	assert.Equal(t, time.Minute, cfg.Location.PruneInterval)
}

func TestParse_Errors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cases := map[string]string{
		"missing http addr": "grpc:\n  addr: \":9090\"\n",
		"missing secret":    "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\n",
		"rs256 without key": "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nauth:\n  jwt:\n    alg: rs256\n",
		"bad alg":           "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nauth:\n  jwt:\n    alg: none\n    secret: x\n",
		"ping after pong":   minimal + "transport:\n  pingInterval: 2m\n  pongWait: 1m\n",
		"bad static role":   "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nauth:\n  staticTokens:\n    t1: {userId: u1, role: admin}\n",
		"bad duration":      minimal + "transport:\n  pongWait: soon\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_JWTSecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWT.Secret)
}

func TestParse_StaticTokens(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nauth:\n  staticTokens:\n    dev-driver: {userId: driverA, role: driver}\n"))
	require.NoError(t, err)
	assert.Equal(t, StaticToken{UserID: "driverA", Role: "driver"}, cfg.Auth.StaticTokens["dev-driver"])
}

func TestLoadConfig_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestShippedConfigIsValid(t *testing.T) {
	data, err := os.ReadFile("config.yaml")
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Location.TTL)
}
