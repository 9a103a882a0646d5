package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"` // empty or "*" allows any
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // ride-hub
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type JWT struct {
	Alg           string        `yaml:"alg"` // HS256|RS256
	Secret        string        `yaml:"secret"`
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type StaticToken struct {
	UserID string `yaml:"userId"`
	Role   string `yaml:"role"` // rider|driver
}

type Auth struct {
	JWT JWT `yaml:"jwt"`
	// StaticTokens replaces JWT verification when set. Local development only.
	StaticTokens map[string]StaticToken `yaml:"staticTokens"`
}

type Transport struct {
	SendQueue      int           `yaml:"sendQueue"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongWait       time.Duration `yaml:"pongWait"`
	WriteWait      time.Duration `yaml:"writeWait"`
	RateLimit      float64       `yaml:"rateLimit"` // envelopes/sec per connection, 0 disables
	RateBurst      int           `yaml:"rateBurst"`
}

type Location struct {
	TTL           time.Duration `yaml:"ttl"` // 0 keeps samples until the driver disconnects
	PruneInterval time.Duration `yaml:"pruneInterval"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Auth      Auth      `yaml:"auth"`
	Transport Transport `yaml:"transport"`
	Location  Location  `yaml:"location"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, validates it and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if c.Transport.SendQueue < 0 {
		return errors.New("transport.sendQueue must not be negative")
	}
	if c.Transport.RateLimit < 0 {
		return errors.New("transport.rateLimit must not be negative")
	}

	defaultDuration(&c.HTTP.ReadTimeout, 10*time.Second)
	defaultDuration(&c.HTTP.WriteTimeout, 15*time.Second)
	defaultDuration(&c.HTTP.IdleTimeout, 60*time.Second)
	defaultDuration(&c.HTTP.ShutdownTimeout, 10*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "ride-hub"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.Transport.SendQueue == 0 {
		c.Transport.SendQueue = 256
	}
	if c.Transport.MaxMessageSize == 0 {
		c.Transport.MaxMessageSize = 64 << 10
	}
	defaultDuration(&c.Transport.PongWait, 60*time.Second)
	defaultDuration(&c.Transport.PingInterval, c.Transport.PongWait*9/10)
	defaultDuration(&c.Transport.WriteWait, 10*time.Second)
	if c.Transport.PingInterval >= c.Transport.PongWait {
		return fmt.Errorf("transport.pingInterval (%s) must be shorter than transport.pongWait (%s)",
			c.Transport.PingInterval, c.Transport.PongWait)
	}

	if c.Location.TTL > 0 {
		defaultDuration(&c.Location.PruneInterval, c.Location.TTL/2)
	}
	return nil
}

func (a *Auth) validate() error {
	if len(a.StaticTokens) > 0 {
		for tok, st := range a.StaticTokens {
			if st.UserID == "" || (st.Role != "rider" && st.Role != "driver") {
				return fmt.Errorf("auth.staticTokens[%s]: userId and role rider|driver are required", tok)
			}
		}
		return nil
	}

	a.JWT.Alg = strings.ToUpper(a.JWT.Alg)
	if a.JWT.Alg == "" {
		a.JWT.Alg = "HS256"
	}
	switch a.JWT.Alg {
	case "HS256":
		if env := os.Getenv("JWT_SECRET"); env != "" {
			a.JWT.Secret = env
		}
		if a.JWT.Secret == "" {
			return errors.New("auth.jwt.secret (or JWT_SECRET) is required for HS256")
		}
	case "RS256":
		if a.JWT.PublicKeyPath == "" {
			return errors.New("auth.jwt.publicKeyPath is required for RS256")
		}
	default:
		return fmt.Errorf("auth.jwt.alg %q is not supported", a.JWT.Alg)
	}
	defaultDuration(&a.JWT.ClockSkew, 30*time.Second)
	return nil
}

func defaultDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
