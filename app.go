package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	decision "github.com/tanpawarit/Chative-Reservation-Concierge/agent/agents/decision"
	orchestrator "github.com/tanpawarit/Chative-Reservation-Concierge/agent/agents/orchestrator"
	llmx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/llm"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/tool"
	calendarx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/calendar"
	configx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/config"
	databasex "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/database"
	openrouterx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/openrouter"
	placesx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/places"
	qstashx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/qstash"
	reservehubx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/reservehub"
	voicex "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/voice"
)

const (
	StoreMemory  = "memory"
	StoreUpstash = "upstash"
	StoreSQL     = "sql"
)

type AppConfig struct {
	Timezone      string        `envconfig:"TIMEZONE" default:"Europe/Madrid"`
	CallerName    string        `envconfig:"CALLER_NAME" split_words:"true"`
	CallerPhone   string        `envconfig:"CALLER_PHONE" split_words:"true"`
	EventDuration time.Duration `envconfig:"EVENT_DURATION" split_words:"true" default:"2h"`
	MaxSteps      int           `envconfig:"MAX_STEPS" split_words:"true" default:"8"`
	Store         string        `envconfig:"STORE" default:"memory"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"72h"`
	Events        bool          `envconfig:"EVENTS" default:"false"`
}

// App owns the wired orchestrator and the resources behind it.
type App struct {
	Orchestrator *orchestrator.Orchestrator

	db       *bun.DB
	sessions *statex.BunStore
	calendar *calendarx.Store
}

func newApp(ctx context.Context) (*App, error) {
	appCfg, err := configx.New[AppConfig]("CONCIERGE")
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	loc, err := time.LoadLocation(appCfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", appCfg.Timezone, err)
	}

	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, fmt.Errorf("load openrouter config: %w", err)
	}
	decider, err := decision.NewFromConfig(ctx, *llmCfg)
	if err != nil {
		return nil, err
	}

	app := &App{}
	dbCfg, err := configx.New[databasex.Config]("DATABASE")
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	app.db, err = databasex.Open(ctx, *dbCfg)
	if err != nil {
		return nil, err
	}
	if app.calendar, err = calendarx.NewStore(app.db); err != nil {
		app.Close()
		return nil, err
	}

	store, err := app.sessionStore(appCfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := app.Migrate(ctx); err != nil {
		app.Close()
		return nil, err
	}

	gwCfg, err := configx.New[toolx.Config]("TOOLS")
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load tool config: %w", err)
	}
	gateway := toolx.NewGateway(buildAdapters(*llmCfg, app.calendar), *gwCfg)

	var opts []orchestrator.Option
	if appCfg.Events {
		qCfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("load qstash config: %w", err)
		}
		client, err := qstashx.NewClient(*qCfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		sink, err := toolx.NewQStashSink(client)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithEventSink(sink))
	}

	app.Orchestrator, err = orchestrator.New(store, decider, gateway, orchestrator.Config{
		Policy: policyx.Config{
			Location:      loc,
			CallerName:    appCfg.CallerName,
			CallerPhone:   appCfg.CallerPhone,
			EventDuration: appCfg.EventDuration,
		},
		MaxStepsPerMessage: appCfg.MaxSteps,
	}, opts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) sessionStore(cfg *AppConfig) (statex.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case StoreMemory, "":
		return statex.NewMemoryStore(), nil
	case StoreUpstash:
		redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, fmt.Errorf("load upstash config: %w", err)
		}
		return statex.NewUpstashRedisStore(*redisCfg, statex.WithTTL(cfg.SessionTTL))
	case StoreSQL:
		store, err := statex.NewBunStore(a.db)
		if err != nil {
			return nil, err
		}
		a.sessions = store
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// buildAdapters wires every capability whose service is configured. The
// rest stay nil and report not-configured observations.
func buildAdapters(llmCfg llmx.Config, cal *calendarx.Store) toolx.Adapters {
	adapters := toolx.Adapters{Calendar: toolx.Calendar{Store: cal}}

	if web, err := openrouterx.NewWebSearcher(llmCfg.OpenRouterFor(llmx.PurposeWebSearch)); err == nil {
		adapters.Web = toolx.WebSearch{Searcher: web}
	} else {
		log.Warn().Err(err).Msg("web search disabled")
	}

	var hub *reservehubx.Client
	if cfg, err := configx.New[reservehubx.Config]("RESERVEHUB"); err == nil {
		if hub, err = reservehubx.NewClient(*cfg); err != nil {
			log.Warn().Err(err).Msg("reservehub disabled")
		}
	} else {
		log.Warn().Err(err).Msg("reservehub not configured, bookings go by phone")
	}
	if hub != nil {
		adapters.Availability = toolx.ReserveHubAvailability{Hub: hub}
		adapters.Booking = toolx.ReserveHubBooking{Hub: hub}
	}

	if cfg, err := configx.New[placesx.Config]("PLACES"); err == nil {
		client, err := placesx.NewClient(*cfg)
		if err != nil {
			log.Warn().Err(err).Msg("place search disabled")
		} else {
			search := toolx.PlaceSearch{Places: client}
			if hub != nil {
				search.Venues = hub
			}
			adapters.Places = search
		}
	} else {
		log.Warn().Err(err).Msg("places not configured")
	}

	if cfg, err := configx.New[voicex.Config]("VOICE"); err == nil {
		client, err := voicex.NewClient(*cfg)
		if err != nil {
			log.Warn().Err(err).Msg("phone calls disabled")
		} else {
			adapters.Phone = toolx.VoiceCaller{Voice: client}
		}
	} else {
		log.Warn().Err(err).Msg("voice agent not configured")
	}
	return adapters
}

func (a *App) Migrate(ctx context.Context) error {
	var errs []error
	if a.calendar != nil {
		errs = append(errs, a.calendar.CreateSchema(ctx))
	}
	if a.sessions != nil {
		errs = append(errs, a.sessions.CreateSchema(ctx))
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}
