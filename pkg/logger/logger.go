package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Level        string `split_words:"true"`
	// Stdout sends logs to stdout instead of stderr. The chat REPL owns stdout.
	Stdout bool `split_words:"true" default:"false"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

func Init(opts ...Config) {
	conf := safe(opts...)

	var out io.Writer = os.Stderr
	if conf.Stdout {
		out = os.Stdout
	}

	if conf.PrettyFormat {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}

	log.Logger = log.Logger.Level(conf.level())
	log.Logger = log.Logger.With().Caller().Stack().Logger()
}

func (c *Config) level() zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.Level))); err == nil && c.Level != "" {
		return lvl
	}
	if c.Debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
