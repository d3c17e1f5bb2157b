package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Run modes. The original deployment shipped three container variants;
// here a single binary selects which loops to run.
const (
	ModeAll   = "all"
	ModePS360 = "ps360"
	ModeXMPP  = "xmpp"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Mode      string `env:"WALLY_MODE" default:"all"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	PS360Host     string `env:"PS360_HOST"`
	PS360User     string `env:"PS360_USER"`
	PS360Password string `env:"PS360_PASSWORD"`

	XMPPJID      string `env:"XMPP_JID"`
	XMPPPassword string `env:"XMPP_PASSWORD"`
	XMPPServer   string `env:"XMPP_SERVER" default:"app-inteleradha-p.healthhub.health.nz"`
	XMPPPort     int    `env:"XMPP_PORT" default:"5222"`

	PhySchHost  string `env:"PHYSCH_HOST"`
	PhySchDB    string `env:"PHYSCH_DB" default:"PhySch"`
	SSOUser     string `env:"SSO_USER"`
	SSOPassword string `env:"SSO_PASSWORD"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RunPS360 reports whether the PS360 poller should run in this mode.
func (c *Config) RunPS360() bool { return c.Mode == ModeAll || c.Mode == ModePS360 }

// RunXMPP reports whether the XMPP presence client should run in this mode.
func (c *Config) RunXMPP() bool { return c.Mode == ModeAll || c.Mode == ModeXMPP }

func validate(cfg *Config) error {
	switch cfg.Mode {
	case ModeAll, ModePS360, ModeXMPP:
	default:
		return fmt.Errorf("WALLY_MODE must be one of all, ps360, xmpp; got %q", cfg.Mode)
	}

	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	if cfg.RunPS360() {
		required["PS360_HOST"] = cfg.PS360Host
		required["PS360_USER"] = cfg.PS360User
		required["PS360_PASSWORD"] = cfg.PS360Password
	}
	if cfg.RunXMPP() {
		required["XMPP_JID"] = cfg.XMPPJID
		required["XMPP_PASSWORD"] = cfg.XMPPPassword
		required["PHYSCH_HOST"] = cfg.PhySchHost
		required["SSO_USER"] = cfg.SSOUser
		required["SSO_PASSWORD"] = cfg.SSOPassword
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	return nil
}
