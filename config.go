/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	archive         string
	bind            string
	clueTime        time.Duration
	configFile      string
	generateTimeout time.Duration
	guessTime       time.Duration
	maxPlayers      int
	messageRate     float64
	playerTimeout   time.Duration
	port            int
	prefix          string
	profile         bool
	replicateModel  string
	replicateToken  string
	replicateURL    string
	sessionTimeout  time.Duration
	soloTime        time.Duration
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	switch {
	case (c.tlsCert == "") != (c.tlsKey == ""):
		return errors.New("both --tls-cert and --tls-key must be provided together")
	case c.port < 1 || c.port > 65535:
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	case c.clueTime < time.Second:
		return fmt.Errorf("invalid clue time (must be at least 1s): %s", c.clueTime)
	case c.soloTime < time.Second:
		return fmt.Errorf("invalid solo time (must be at least 1s): %s", c.soloTime)
	case c.guessTime < time.Second:
		return fmt.Errorf("invalid guess time (must be at least 1s): %s", c.guessTime)
	case c.generateTimeout <= 0:
		return fmt.Errorf("invalid generate timeout (must be positive): %s", c.generateTimeout)
	case c.maxPlayers < 0:
		return fmt.Errorf("invalid max players (must not be negative): %d", c.maxPlayers)
	case c.messageRate < 0:
		return fmt.Errorf("invalid message rate (must not be negative): %g", c.messageRate)
	case c.playerTimeout < 0:
		return fmt.Errorf("invalid player timeout (must not be negative): %s", c.playerTimeout)
	case c.sessionTimeout < 0:
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	case c.replicateToken != "" && c.replicateModel == "":
		return errors.New("--replicate-model must be set when --replicate-token is provided")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}

	return "http"
}

func (c *Config) managerOptions() Options {
	return Options{
		ClueTime:        c.clueTime,
		SoloClueTime:    c.soloTime,
		GuessTime:       c.guessTime,
		GenerateTimeout: c.generateTimeout,
		IdleTimeout:     c.sessionTimeout,
		MaxPlayers:      c.maxPlayers,
	}
}

// applyConfig copies values from v onto every flag not already set on
// the command line or through the environment.
func applyConfig(fs *pflag.FlagSet, v *viper.Viper) {
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CLUEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "cluegen",
		Short:         "Multiplayer party game: clue the AI, guess the prompt.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.configFile == "" {
				return nil
			}

			v.SetConfigFile(cfg.configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", cfg.configFile, err)
			}

			applyConfig(cmd.Flags(), v)

			return nil
		},
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

	fs.StringVar(&cfg.archive, "archive", "", "path to sqlite database for finished rounds, empty to disable (env: CLUEGEN_ARCHIVE)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CLUEGEN_BIND)")
	fs.DurationVar(&cfg.clueTime, "clue-time", 30*time.Second, "time the host has to submit a clue (env: CLUEGEN_CLUE_TIME)")
	fs.StringVarP(&cfg.configFile, "config", "c", "", "path to config file (yaml, toml or json) (env: CLUEGEN_CONFIG)")
	fs.DurationVar(&cfg.generateTimeout, "generate-timeout", 30*time.Second, "time allowed for a single image generation (env: CLUEGEN_GENERATE_TIMEOUT)")
	fs.DurationVar(&cfg.guessTime, "guess-time", 60*time.Second, "time players have to guess the prompt (env: CLUEGEN_GUESS_TIME)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 12, "maximum players per game, 0 for unlimited (env: CLUEGEN_MAX_PLAYERS)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 2, "messages per second allowed per connection, 0 for unlimited (env: CLUEGEN_MESSAGE_RATE)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", time.Minute, "time before unresponsive connections are dropped (env: CLUEGEN_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CLUEGEN_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CLUEGEN_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof and room debug handlers (env: CLUEGEN_PROFILE)")
	fs.StringVar(&cfg.replicateModel, "replicate-model", defaultReplicateModel, "replicate model used for image generation (env: CLUEGEN_REPLICATE_MODEL)")
	fs.StringVar(&cfg.replicateToken, "replicate-token", "", "replicate api token, empty to disable image generation (env: CLUEGEN_REPLICATE_TOKEN)")
	fs.StringVar(&cfg.replicateURL, "replicate-url", defaultReplicateURL, "base url of the replicate api (env: CLUEGEN_REPLICATE_URL)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle games are closed, 0 to disable (env: CLUEGEN_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.soloTime, "solo-time", 10*time.Second, "time allowed for a clue in solo practice rounds (env: CLUEGEN_SOLO_TIME)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CLUEGEN_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CLUEGEN_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CLUEGEN_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CLUEGEN_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
	})
	applyConfig(fs, v)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("cluegen v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
