package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	availabilityCommands "github.com/felixgeelhaar/therapia/internal/availability/application/commands"
	availabilityQueries "github.com/felixgeelhaar/therapia/internal/availability/application/queries"
	availabilityWorkers "github.com/felixgeelhaar/therapia/internal/availability/application/workers"
	bookingCommands "github.com/felixgeelhaar/therapia/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/therapia/internal/booking/application/queries"
	"github.com/felixgeelhaar/therapia/internal/booking/application/services"
	"github.com/felixgeelhaar/therapia/internal/booking/infrastructure/lock"
	calendarApp "github.com/felixgeelhaar/therapia/internal/calendar/application"
	calendarWorkers "github.com/felixgeelhaar/therapia/internal/calendar/application/workers"
	calendarDomain "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	"github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/breaker"
	googleCal "github.com/felixgeelhaar/therapia/internal/calendar/infrastructure/google"
	calendarSetup "github.com/felixgeelhaar/therapia/internal/calendar/setup"
	catalogCommands "github.com/felixgeelhaar/therapia/internal/catalog/application/commands"
	catalogQueries "github.com/felixgeelhaar/therapia/internal/catalog/application/queries"
	notifications "github.com/felixgeelhaar/therapia/internal/notifications/domain"
	"github.com/felixgeelhaar/therapia/internal/notifications/infrastructure/email"
	paymentCommands "github.com/felixgeelhaar/therapia/internal/payments/application/commands"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/fake"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/stripe"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/webhook"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/postgres" // Register Postgres driver
	_ "github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/outbox"
	waitlistCommands "github.com/felixgeelhaar/therapia/internal/waitlist/application/commands"
	waitlistQueries "github.com/felixgeelhaar/therapia/internal/waitlist/application/queries"
	"github.com/felixgeelhaar/therapia/pkg/config"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver
	Repos    *Repositories

	// Redis (nil in local mode)
	RedisClient *redis.Client

	Cipher     crypto.FieldCipher
	UnitOfWork sharedApplication.UnitOfWork
	Recorder   *outbox.Recorder
	Clock      sharedDomain.Clock
	IDs        sharedDomain.IDGenerator

	// Observability
	Registry *prometheus.Registry
	Metrics  observability.Metrics
	Health   *observability.HealthRegistry

	// Integrations
	Calendar       *calendarSetup.Calendar
	Gateway        payments.Gateway
	WebhookDecoder payments.WebhookDecoder
	Notifier       notifications.Notifier
	Locker         services.SlotLocker

	// Event delivery. InProcessEventBus is set when no broker is configured;
	// it then doubles as the outbox publisher.
	EventPublisher    eventbus.Publisher
	RabbitPublisher   *eventbus.RabbitMQPublisher
	InProcessEventBus *eventbus.InProcessEventBus
	OutboxProcessor   *outbox.Processor

	// Booking
	Availability             *services.AvailabilityService
	BookAppointmentHandler   *bookingCommands.BookAppointmentHandler
	CancelAppointmentHandler *bookingCommands.CancelAppointmentHandler
	RescheduleHandler        *bookingCommands.RescheduleAppointmentHandler
	ConfirmPaymentHandler    *bookingCommands.ConfirmPaymentHandler
	RecordOutcomeHandler     *bookingCommands.RecordOutcomeHandler
	GetAppointmentHandler    *bookingQueries.GetAppointmentHandler
	AvailableSlotsHandler    *bookingQueries.GetAvailableSlotsHandler

	// Payments
	ProcessWebhookHandler *paymentCommands.ProcessWebhookHandler

	// Catalog
	CreateServiceHandler *catalogCommands.CreateServiceHandler
	UpdateServiceHandler *catalogCommands.UpdateServiceHandler
	ListServicesHandler  *catalogQueries.ListServicesHandler
	GetServiceHandler    *catalogQueries.GetServiceHandler

	// Availability
	CreateAvailabilityHandler *availabilityCommands.CreateAvailabilityHandler
	SetSlotStatusHandler      *availabilityCommands.SetSlotStatusHandler
	DeleteSlotHandler         *availabilityCommands.DeleteSlotHandler
	ListSlotsHandler          *availabilityQueries.ListSlotsHandler

	// Waitlist
	SubmitWaitlistHandler *waitlistCommands.SubmitRequestHandler
	ListWaitlistHandler   *waitlistQueries.ListRequestsHandler

	// Workers
	RetentionWorker      *availabilityWorkers.RetentionWorker
	CalendarImportWorker *calendarWorkers.CalendarImportWorker
}

// Option overrides a default dependency.
type Option func(*Container)

// WithClock replaces the system clock.
func WithClock(clock sharedDomain.Clock) Option {
	return func(c *Container) { c.Clock = clock }
}

// WithIDs replaces the random ID source.
func WithIDs(ids sharedDomain.IDGenerator) Option {
	return func(c *Container) { c.IDs = ids }
}

// NewContainer creates and wires all dependencies. SQLite databases are
// migrated on open; Postgres expects `therapia migrate up` to have run.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
		Clock:  sharedDomain.SystemClock{},
		IDs:    sharedDomain.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(c)
	}

	cipher, err := crypto.NewAESGCMFromBase64Key(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid THERAPIA_ENCRYPTION_KEY: %w", err)
	}
	c.Cipher = cipher

	conn, err := database.Open(ctx, databaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	logger.Info("connected to database", "driver", c.DBDriver)

	factory := NewRepositoryFactory(conn, cipher)
	applied, err := factory.Migrate(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		logger.Info("applied database migrations", "count", applied)
	}
	c.Repos = factory.Build()
	c.UnitOfWork = database.NewUnitOfWork(conn)
	c.Recorder = outbox.NewRecorder(c.Repos.Outbox)

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.NewPrometheusMetrics(c.Registry)

	if err := c.connectRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.initIntegrations(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.initEventDelivery(); err != nil {
		c.Close()
		return nil, err
	}

	c.initHandlers()
	c.initWorkers()
	c.initHealth()

	if c.InProcessEventBus != nil {
		RegisterConsumers(c, c.InProcessEventBus.RegisterConsumer)
	}

	return c, nil
}

func databaseConfig(cfg *config.Config) database.Config {
	if cfg.LocalMode {
		path := strings.TrimPrefix(cfg.DatabaseURL, "sqlite://")
		return database.Config{Driver: database.DriverSQLite, SQLitePath: path}
	}
	return database.Config{Driver: database.DriverPostgres, URL: cfg.DatabaseURL}
}

// connectRedis enables the distributed slot lock. Without REDIS_URL, or when
// Redis is unreachable in development, reservations lock in-process.
func (c *Container) connectRedis(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger
	c.Locker = lock.NewLocalLocker()
	if cfg.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		logger.Warn("invalid Redis URL, slot locks stay in-process", "error", err)
		return nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Warn("Redis not available, slot locks stay in-process", "error", err)
		return nil
	}
	c.RedisClient = client
	c.Locker = lock.NewRedisLocker(client, lock.DefaultRedisConfig())
	logger.Info("connected to Redis")
	return nil
}

func (c *Container) initIntegrations(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	breakerCfg := breaker.DefaultConfig()
	if cfg.CalendarBreakerFails > 0 {
		breakerCfg.FailureThreshold = convert.IntToUint32Clamped(cfg.CalendarBreakerFails)
	}
	if cfg.CalendarBreakerOpen > 0 {
		breakerCfg.Timeout = cfg.CalendarBreakerOpen
	}
	cal, err := calendarSetup.NewCalendar(ctx, calendarSetup.Config{
		Provider:   calendarDomain.ProviderType(cfg.CalendarProvider),
		CalendarID: cfg.CalendarID,
		Google: googleCal.Credentials{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RefreshToken: cfg.GoogleRefreshToken,
		},
		CalDAVURL:       cfg.CalDAVURL,
		CalDAVUsername:  cfg.CalDAVUsername,
		CalDAVPassword:  cfg.CalDAVPassword,
		Breaker:         breakerCfg,
		BreakerObserver: c.observeBreaker,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to configure calendar: %w", err)
	}
	c.Calendar = cal

	switch cfg.PaymentProvider {
	case stripe.ProviderName:
		c.Gateway = stripe.NewGateway(stripe.Config{SecretKey: cfg.StripeAPIKey, Timeout: cfg.UseCaseTimeout})
		c.WebhookDecoder = stripe.NewWebhookDecoder(cfg.StripeWebhookSecret)
	case "", fake.ProviderName:
		c.Gateway = fake.NewGateway("")
		c.WebhookDecoder = webhook.NewHMACDecoder(cfg.PaymentWebhookSecret)
		logger.Warn("using the fake payment gateway")
	default:
		return fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}

	if cfg.SendGridAPIKey != "" {
		notifier, err := email.NewSendGridNotifier(email.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to configure SendGrid: %w", err)
		}
		c.Notifier = notifier
	} else {
		logger.Info("SENDGRID_API_KEY not set, emails are only logged")
		c.Notifier = email.NewLogNotifier(logger)
	}
	return nil
}

var breakerStateValues = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

func (c *Container) observeBreaker(name, _, to string) {
	c.Metrics.Gauge(observability.MetricCalendarBreakerState, breakerStateValues[to], observability.T("breaker", name))
}

// initEventDelivery selects the outbox publisher: RabbitMQ when configured,
// otherwise the in-process bus. Development falls back to the in-process bus
// when the broker is down.
func (c *Container) initEventDelivery() error {
	cfg, logger := c.Config, c.Logger

	var publisher eventbus.Publisher
	if cfg.RabbitMQURL != "" {
		rabbit, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		switch {
		case err == nil:
			c.RabbitPublisher = rabbit
			publisher = rabbit
		case cfg.IsDevelopment():
			logger.Warn("RabbitMQ not available, delivering events in-process", "error", err)
		default:
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
	}
	if publisher == nil {
		c.InProcessEventBus = eventbus.NewInProcessEventBus(logger)
		publisher = c.InProcessEventBus
	}
	c.EventPublisher = &meteredPublisher{next: publisher, metrics: c.Metrics}

	processorConfig := outbox.DefaultProcessorConfig()
	if cfg.OutboxPollInterval > 0 {
		processorConfig.PollInterval = cfg.OutboxPollInterval
	}
	if cfg.OutboxBatchSize > 0 {
		processorConfig.BatchSize = cfg.OutboxBatchSize
	}
	if cfg.OutboxMaxRetries > 0 {
		processorConfig.MaxAttempts = cfg.OutboxMaxRetries
	}
	c.OutboxProcessor = outbox.NewProcessor(c.Repos.Outbox, c.EventPublisher, processorConfig, logger,
		outbox.WithClock(c.Clock),
		outbox.WithMetrics(c.Metrics),
	)
	return nil
}

// BookingDeps returns the dependencies shared by the booking use cases.
func (c *Container) BookingDeps() bookingCommands.Deps {
	return bookingCommands.Deps{
		Services:     c.Repos.Services,
		Slots:        c.Repos.Slots,
		Appointments: c.Repos.Appointments,
		Payments:     c.Repos.Payments,
		Availability: c.Availability,
		Gateway:      c.Gateway,
		Calendar:     c.Calendar.Adapter,
		Recorder:     c.Recorder,
		UoW:          c.UnitOfWork,
		Clock:        c.Clock,
		IDs:          c.IDs,
		Logger:       c.Logger,
		Timeout:      c.Config.UseCaseTimeout,
		ReturnURL:    c.Config.PaymentReturnURL,
	}
}

func (c *Container) initHandlers() {
	r := c.Repos

	c.Availability = services.NewAvailabilityService(c.Calendar.Adapter, r.Appointments, c.Locker, c.Logger)

	deps := c.BookingDeps()
	c.BookAppointmentHandler = bookingCommands.NewBookAppointmentHandler(deps)
	c.CancelAppointmentHandler = bookingCommands.NewCancelAppointmentHandler(deps)
	c.RescheduleHandler = bookingCommands.NewRescheduleAppointmentHandler(deps)
	c.ConfirmPaymentHandler = bookingCommands.NewConfirmPaymentHandler(deps)
	c.RecordOutcomeHandler = bookingCommands.NewRecordOutcomeHandler(deps)
	c.GetAppointmentHandler = bookingQueries.NewGetAppointmentHandler(r.Appointments)
	c.AvailableSlotsHandler = bookingQueries.NewGetAvailableSlotsHandler(r.Services, r.Slots, c.Availability, c.Clock)

	c.ProcessWebhookHandler = paymentCommands.NewProcessWebhookHandler(
		c.WebhookDecoder,
		r.Payments,
		r.Webhooks,
		c.Recorder,
		c.UnitOfWork,
		c.Clock,
		c.Config.WebhookTimeout,
		c.Logger,
	)

	c.CreateServiceHandler = catalogCommands.NewCreateServiceHandler(r.Services, c.Recorder, c.UnitOfWork, c.Clock, c.IDs)
	c.UpdateServiceHandler = catalogCommands.NewUpdateServiceHandler(r.Services, c.Recorder, c.UnitOfWork, c.Clock)
	c.ListServicesHandler = catalogQueries.NewListServicesHandler(r.Services)
	c.GetServiceHandler = catalogQueries.NewGetServiceHandler(r.Services)

	c.CreateAvailabilityHandler = availabilityCommands.NewCreateAvailabilityHandler(r.Slots, r.Services, c.UnitOfWork, c.Clock, c.IDs)
	c.SetSlotStatusHandler = availabilityCommands.NewSetSlotStatusHandler(r.Slots, c.Clock)
	c.DeleteSlotHandler = availabilityCommands.NewDeleteSlotHandler(r.Slots)
	c.ListSlotsHandler = availabilityQueries.NewListSlotsHandler(r.Slots)

	c.SubmitWaitlistHandler = waitlistCommands.NewSubmitRequestHandler(r.Waitlist, r.Services, c.UnitOfWork, c.Clock, c.IDs)
	c.ListWaitlistHandler = waitlistQueries.NewListRequestsHandler(r.Waitlist)
}

// CalendarBackoff is the retry policy for calendar writes made by subscribers.
func (c *Container) CalendarBackoff() calendarApp.Backoff {
	b := calendarApp.DefaultBackoff()
	if c.Config.CalendarRetryAttempts > 0 {
		b.Attempts = c.Config.CalendarRetryAttempts
	}
	if c.Config.CalendarRetryBase > 0 {
		b.Base = c.Config.CalendarRetryBase
	}
	if c.Config.CalendarRetryMax > 0 {
		b.Max = c.Config.CalendarRetryMax
	}
	return b
}

func (c *Container) initWorkers() {
	c.RetentionWorker = availabilityWorkers.NewRetentionWorker(
		c.Repos.Slots,
		c.Clock,
		availabilityWorkers.RetentionWorkerConfig{Retention: c.Config.AvailabilityRetention},
		c.Logger,
	)
	if c.Calendar.Importer != nil {
		cfg := calendarWorkers.DefaultImportWorkerConfig()
		cfg.Interval = c.Config.CalendarImportEvery
		cfg.TZ = c.Config.CalendarTZ
		c.CalendarImportWorker = calendarWorkers.NewCalendarImportWorker(
			c.Calendar.Importer,
			c.Repos.Slots,
			c.Clock,
			c.IDs,
			cfg,
			c.Logger,
		)
	}
}

func (c *Container) initHealth() {
	c.Health = observability.NewHealthRegistry(0)
	c.Health.Register("database", observability.PingChecker("database", true, c.DBConn.Ping))
	if c.RedisClient != nil {
		client := c.RedisClient
		c.Health.Register("redis", observability.PingChecker("redis", false, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	if c.RabbitPublisher != nil {
		c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", false, c.RabbitPublisher.Ping))
	}
	if b, ok := c.Calendar.Adapter.(*breaker.Adapter); ok {
		c.Health.Register("calendar", observability.BreakerChecker(b.State))
	}
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.RetentionWorker != nil {
		c.RetentionWorker.Stop()
	}
	if c.CalendarImportWorker != nil {
		c.CalendarImportWorker.Stop()
	}
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("failed to close Redis client", "error", err)
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Warn("failed to close database connection", "error", err)
		}
	}
}
