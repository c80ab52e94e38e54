/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	buzzBurst      int
	buzzRate       float64
	defaultTimer   int
	maxRetries     int
	natsBucket     string
	natsURL        string
	port           int
	prefix         string
	profile        bool
	redisAddr      string
	redisPrefix    string
	sessionTimeout time.Duration
	store          string
	tickInterval   time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case "memory":
	case "nats":
		if c.natsURL == "" || c.natsBucket == "" {
			return errors.New("--nats-url and --nats-bucket are required with --store nats")
		}
	case "redis":
		if c.redisAddr == "" {
			return errors.New("--redis-addr is required with --store redis")
		}
	default:
		return fmt.Errorf("invalid store (must be one of memory, nats, redis): %q", c.store)
	}
	if c.defaultTimer < 1 || c.defaultTimer > room.MaxTimer {
		return fmt.Errorf("invalid default timer (must be between 1-%d seconds): %d", room.MaxTimer, c.defaultTimer)
	}
	if c.maxRetries < 1 {
		return fmt.Errorf("invalid max retries (must be at least 1): %d", c.maxRetries)
	}
	if c.tickInterval <= 0 {
		return fmt.Errorf("invalid tick interval (must be positive): %s", c.tickInterval)
	}
	if c.buzzRate <= 0 || c.buzzBurst < 1 {
		return errors.New("--buzz-rate must be positive and --buzz-burst at least 1")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) roomConfig() room.Config {
	return room.Config{
		DefaultTimer: c.defaultTimer,
		MaxRetries:   c.maxRetries,
		TickInterval: c.tickInterval,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BUZZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "buzzbox",
		Short:         "A game show buzzer: one host, many players, rounds with qualifier cutoffs.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	defaults := room.DefaultConfig()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BUZZBOX_BIND)")
	fs.IntVar(&cfg.buzzBurst, "buzz-burst", 3, "buzz attempts a player connection may send in a burst (env: BUZZBOX_BUZZ_BURST)")
	fs.Float64Var(&cfg.buzzRate, "buzz-rate", 2, "sustained buzz attempts per second per player connection (env: BUZZBOX_BUZZ_RATE)")
	fs.IntVar(&cfg.defaultTimer, "default-timer", defaults.DefaultTimer, "round 1 timer of new rooms, in seconds (env: BUZZBOX_DEFAULT_TIMER)")
	fs.IntVar(&cfg.maxRetries, "max-retries", defaults.MaxRetries, "attempts per command when writes race (env: BUZZBOX_MAX_RETRIES)")
	fs.StringVar(&cfg.natsBucket, "nats-bucket", "buzzbox", "JetStream key-value bucket for rooms (env: BUZZBOX_NATS_BUCKET)")
	fs.StringVar(&cfg.natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL (env: BUZZBOX_NATS_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BUZZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BUZZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BUZZBOX_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "127.0.0.1:6379", "Redis address (env: BUZZBOX_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPrefix, "redis-prefix", "buzzbox:", "prefix for Redis keys and channels (env: BUZZBOX_REDIS_PREFIX)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed, 0 to disable (env: BUZZBOX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", "memory", "room store: memory, nats or redis (env: BUZZBOX_STORE)")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", defaults.TickInterval, "length of one timer second (env: BUZZBOX_TICK_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BUZZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BUZZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BUZZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BUZZBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("buzzbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
