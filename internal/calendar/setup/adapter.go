// Package setup builds the configured calendar adapter.
package setup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/therapia/internal/calendar/domain"
	"github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/breaker"
	"github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/caldav"
	googleCal "github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/google"
	"github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/memory"
)

// Config selects and configures the single active calendar provider.
type Config struct {
	Provider   domain.ProviderType
	CalendarID string

	Google  googleCal.Credentials
	BaseURL string

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string

	Breaker         breaker.Config
	BreakerObserver breaker.StateObserver
	Logger          *slog.Logger
}

// Calendar bundles the adapter used for bookings and the importer used to
// mirror external events. Importer is nil when the provider cannot list events.
type Calendar struct {
	Adapter  domain.Adapter
	Importer domain.Importer
	Mock     *memory.MockAdapter
}

// NewCalendar builds the adapter for cfg.Provider. Real providers are wrapped
// in a circuit breaker; the mock is returned bare so tests can inspect it.
func NewCalendar(ctx context.Context, cfg Config) (*Calendar, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		adapter  domain.Adapter
		importer domain.Importer
	)
	switch cfg.Provider {
	case "", domain.ProviderMock:
		mock := memory.NewMockAdapter()
		logger.Debug("using mock calendar provider")
		return &Calendar{Adapter: mock, Importer: mock, Mock: mock}, nil

	case domain.ProviderGoogle:
		if cfg.Google.RefreshToken == "" {
			return nil, fmt.Errorf("google calendar requires a refresh token")
		}
		g := googleCal.NewAdapter(cfg.Google.TokenSource(ctx), logger).
			WithBaseURL(cfg.BaseURL).
			WithCalendarID(cfg.CalendarID)
		adapter, importer = g, g

	case domain.ProviderApple, domain.ProviderCalDAV:
		baseURL := cfg.CalDAVURL
		if baseURL == "" && cfg.Provider == domain.ProviderApple {
			baseURL = caldav.AppleCalDAVURL
		}
		if baseURL == "" {
			return nil, fmt.Errorf("caldav calendar requires a server URL")
		}
		c := caldav.NewAdapter(baseURL, cfg.CalDAVUsername, cfg.CalDAVPassword, logger).
			WithCalendarPath(cfg.CalendarID)
		adapter, importer = c, c

	default:
		return nil, fmt.Errorf("unknown calendar provider %q", cfg.Provider)
	}

	logger.Info("calendar provider configured", "provider", cfg.Provider.DisplayName())
	return &Calendar{
		Adapter:  breaker.NewAdapter(adapter, "calendar-"+cfg.Provider.String(), cfg.Breaker, logger, cfg.BreakerObserver),
		Importer: importer,
	}, nil
}
