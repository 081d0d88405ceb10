// Package app wires the process: storage, per-user actors, handlers and
// the background workers shared by every entry point.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/meridian/internal/actor"
	availabilityApp "github.com/felixgeelhaar/meridian/internal/availability/application"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/caldav"
	calendarPersistence "github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/resilience"
	calendarSync "github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/sync"
	"github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/tiergate"
	constraintCommands "github.com/felixgeelhaar/meridian/internal/constraints/application/commands"
	constraintQueries "github.com/felixgeelhaar/meridian/internal/constraints/application/queries"
	constraintPersistence "github.com/felixgeelhaar/meridian/internal/constraints/infrastructure/persistence"
	policyCommands "github.com/felixgeelhaar/meridian/internal/policy/application/commands"
	policyQueries "github.com/felixgeelhaar/meridian/internal/policy/application/queries"
	policyPersistence "github.com/felixgeelhaar/meridian/internal/policy/infrastructure/persistence"
	schedulingCommands "github.com/felixgeelhaar/meridian/internal/scheduling/application/commands"
	schedulingQueries "github.com/felixgeelhaar/meridian/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	schedulingDomain "github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/infrastructure/holds"
	schedulingPersistence "github.com/felixgeelhaar/meridian/internal/scheduling/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/meridian/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/meridian/internal/userstate"
	"github.com/felixgeelhaar/meridian/pkg/config"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics
	Health  *observability.HealthRegistry
	Clock   sharedDomain.Clock

	// Database
	DB database.Connection

	// Repositories
	Calendar       *calendarPersistence.SQLStore
	PolicyRepo     *policyPersistence.SQLRepository
	ConstraintRepo *constraintPersistence.SQLRepository
	SessionRepo    *schedulingPersistence.SQLRepository
	Ledger         *schedulingPersistence.SQLLedger
	OutboxRepo     outbox.Repository
	Holds          schedulingDomain.HoldStore
	UnitOfWork     sharedApplication.UnitOfWork

	// Per-user state
	Actors *userstate.Store
	Reader userstate.Reader

	// Calendar collaborators
	Events   calendar.EventSource
	Creator  calendar.EventCreator
	TierGate calendar.TierGate

	// Shared services
	Compiler     *availabilityApp.Compiler
	Sessions     *services.Sessions
	Participants *services.Participants

	// Availability
	GetAvailabilityHandler *availabilityApp.GetAvailabilityHandler

	// Policy
	GetMatrixHandler *policyQueries.GetMatrixHandler
	ResolveHandler   *policyQueries.ResolveHandler
	SetEdgesHandler  *policyCommands.SetEdgesHandler

	// Constraints
	CreateConstraintHandler *constraintCommands.CreateConstraintHandler
	UpdateConstraintHandler *constraintCommands.UpdateConstraintHandler
	DeleteConstraintHandler *constraintCommands.DeleteConstraintHandler
	ConstraintQueries       *constraintQueries.Handler

	// Scheduling
	ProposeHandler    *schedulingCommands.ProposeHandler
	HoldHandler       *schedulingCommands.HoldHandler
	ExtendHoldHandler *schedulingCommands.ExtendHoldHandler
	CommitHandler     *schedulingCommands.CommitHandler
	CancelHandler     *schedulingCommands.CancelHandler
	SessionQueries    *schedulingQueries.Handler

	// Messaging and workers
	EventPublisher  eventbus.Publisher
	EventRegistry   *eventbus.Registry
	SyncConsumer    *eventbus.RabbitMQConsumer
	OutboxProcessor *outbox.Processor
	HoldSweeper     *services.HoldSweeper

	closers []func() error
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// Option adjusts a container under construction.
type Option func(*Container)

// WithClock replaces the system clock.
func WithClock(clock sharedDomain.Clock) Option {
	return func(c *Container) { c.Clock = clock }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(metrics observability.Metrics) Option {
	return func(c *Container) { c.Metrics = metrics }
}

// NewContainer connects storage and builds every handler. Background
// workers are not running until Start.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NoopMetrics{},
		Health:  observability.NewHealthRegistry(),
		Clock:   sharedDomain.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.initDatabase(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initCalendar()
	c.initHandlers()
	if err := c.initMessaging(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	conn, err := database.Open(ctx, database.Config{
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
		MaxConns:   c.Config.DBMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = conn
	c.closers = append(c.closers, conn.Close)
	c.Logger.Info("connected to database", "driver", conn.Driver())

	if c.Config.AutoMigrate {
		applied, err := migrations.Run(ctx, conn)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if len(applied) > 0 {
			c.Logger.Info("applied migrations", "versions", applied)
		}
	}

	c.Health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy, conn.Ping))
	return nil
}

func (c *Container) initStorage(ctx context.Context) error {
	c.Calendar = calendarPersistence.NewSQLStore(c.DB)
	c.PolicyRepo = policyPersistence.NewSQLRepository(c.DB, c.Clock)
	c.ConstraintRepo = constraintPersistence.NewSQLRepository(c.DB)
	c.SessionRepo = schedulingPersistence.NewSQLRepository(c.DB)
	c.Ledger = schedulingPersistence.NewSQLLedger(c.DB, c.Clock)
	c.OutboxRepo = outbox.NewSQLRepository(c.DB)
	c.UnitOfWork = database.NewUnitOfWork(c.DB)

	if c.Config.RedisURL != "" {
		store, err := holds.NewRedisStore(ctx, c.Config.RedisURL, c.Clock)
		if err != nil {
			if !c.Config.IsDevelopment() {
				return err
			}
			c.Logger.Warn("Redis not available, holds will be kept in memory", "error", err)
		} else {
			c.Holds = store
			c.closers = append(c.closers, store.Close)
			c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded, store.Ping))
			c.Logger.Info("connected to Redis")
		}
	}
	if c.Holds == nil {
		c.Holds = holds.NewMemoryStore(c.Clock)
	}

	c.Actors = userstate.NewStore(userstate.Repositories{
		Policy:      c.PolicyRepo,
		Constraints: c.ConstraintRepo,
		Sessions:    c.SessionRepo,
	}, actor.Config{
		MailboxSize: c.Config.ActorMailboxSize,
		IdleTimeout: c.Config.ActorIdleTimeout,
	}, c.Logger)
	c.closers = append(c.closers, func() error {
		c.Actors.Close()
		return nil
	})
	c.Reader = userstate.NewReader(c.Actors)
	return nil
}

func (c *Container) initCalendar() {
	breaker := resilience.DefaultBreakerConfig()
	if c.Config.BreakerMaxFailures > 0 {
		breaker.MaxFailures = c.Config.BreakerMaxFailures
	}
	if c.Config.BreakerOpenTimeout > 0 {
		breaker.OpenTimeout = c.Config.BreakerOpenTimeout
	}

	c.Events = resilience.NewEventSource(c.Calendar, breaker, c.Logger, c.Metrics)

	var creator calendar.EventCreator = calendarPersistence.NewLocalCreator(c.Calendar)
	if c.Config.CalDAVURL != "" {
		dav := caldav.NewCreator(c.Config.CalDAVURL, c.Config.CalDAVUsername, c.Config.CalDAVPassword, c.Logger)
		if c.Config.CalDAVCalendarPath != "" {
			dav = dav.WithCalendarPath(c.Config.CalDAVCalendarPath)
		}
		creator = dav
		c.Logger.Info("booking into CalDAV calendar", "url", c.Config.CalDAVURL)
	}
	c.Creator = resilience.NewEventCreator(creator, breaker, c.Logger, c.Metrics)

	c.TierGate = tiergate.NewStatic(c.Config.TierGateAllowAll, c.Config.TierGateAllowed)
}

func (c *Container) initHandlers() {
	c.Compiler = availabilityApp.NewCompiler(c.Calendar, c.Events, c.Ledger, c.Reader, c.Logger, c.Metrics)
	c.GetAvailabilityHandler = availabilityApp.NewGetAvailabilityHandler(c.Compiler, c.Calendar)

	c.GetMatrixHandler = policyQueries.NewGetMatrixHandler(c.Reader, c.Calendar)
	c.ResolveHandler = policyQueries.NewResolveHandler(c.Reader, c.Calendar)
	c.SetEdgesHandler = policyCommands.NewSetEdgesHandler(c.Actors, c.Calendar, c.PolicyRepo, c.OutboxRepo, c.UnitOfWork, c.Clock)

	constraintDeps := constraintCommands.Deps{
		Actors:     c.Actors,
		Repo:       c.ConstraintRepo,
		OutboxRepo: c.OutboxRepo,
		UOW:        c.UnitOfWork,
		Gate:       c.TierGate,
		Clock:      c.Clock,
	}
	c.CreateConstraintHandler = constraintCommands.NewCreateConstraintHandler(constraintDeps)
	c.UpdateConstraintHandler = constraintCommands.NewUpdateConstraintHandler(constraintDeps)
	c.DeleteConstraintHandler = constraintCommands.NewDeleteConstraintHandler(constraintDeps)
	c.ConstraintQueries = constraintQueries.NewHandler(c.Reader, c.TierGate)

	c.Sessions = services.NewSessions(c.SessionRepo, c.OutboxRepo, c.UnitOfWork, c.Holds, c.Clock, c.Logger, c.Metrics)
	c.Participants = services.NewParticipants(c.Compiler, c.Reader)
	schedulingDeps := schedulingCommands.Deps{
		Actors:       c.Actors,
		Sessions:     c.Sessions,
		Participants: c.Participants,
		Accounts:     c.Calendar,
		Ledger:       c.Ledger,
		Creator:      c.Creator,
		Gate:         c.TierGate,
		HoldTTL:      c.Config.HoldTTL,
	}
	c.ProposeHandler = schedulingCommands.NewProposeHandler(schedulingDeps)
	c.HoldHandler = schedulingCommands.NewHoldHandler(schedulingDeps)
	c.ExtendHoldHandler = schedulingCommands.NewExtendHoldHandler(schedulingDeps)
	c.CommitHandler = schedulingCommands.NewCommitHandler(schedulingDeps)
	c.CancelHandler = schedulingCommands.NewCancelHandler(schedulingDeps)
	c.SessionQueries = schedulingQueries.NewHandler(c.Actors, c.Sessions, c.Participants)

	c.HoldSweeper = services.NewHoldSweeper(c.Actors, c.SessionRepo, c.Sessions, services.SweeperConfig{
		Interval: c.Config.HoldSweepInterval,
	})
}

// initMessaging publishes to RabbitMQ when configured and otherwise
// dispatches in process. Calendar sync arrives through the same consumers
// either way.
func (c *Container) initMessaging() error {
	syncConsumer := calendarSync.NewConsumer(c.Calendar, c.Logger)

	if c.Config.RabbitMQURL == "" {
		bus := eventbus.NewInProcessBus(c.Logger)
		bus.Register(syncConsumer)
		c.EventPublisher = bus
	} else {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		if err != nil {
			if !c.Config.IsDevelopment() {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			c.Logger.Warn("RabbitMQ not available, using in-process bus", "error", err)
			bus := eventbus.NewInProcessBus(c.Logger)
			bus.Register(syncConsumer)
			c.EventPublisher = bus
		} else {
			c.EventPublisher = publisher
			c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", observability.HealthStatusDegraded, publisher.Ping))

			c.EventRegistry = eventbus.NewRegistry(c.Logger)
			c.EventRegistry.Register(syncConsumer)
			consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
				URL:       c.Config.RabbitMQURL,
				QueueName: c.Config.SyncQueueName,
				Logger:    c.Logger,
			}, c.EventRegistry)
			if err != nil {
				_ = publisher.Close()
				return fmt.Errorf("failed to subscribe to calendar sync: %w", err)
			}
			c.SyncConsumer = consumer
			c.closers = append(c.closers, consumer.Close)
		}
	}
	c.closers = append(c.closers, c.EventPublisher.Close)

	defaults := outbox.DefaultProcessorConfig()
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     c.Config.OutboxPollInterval,
		BatchSize:        c.Config.OutboxBatchSize,
		MaxRetries:       c.Config.OutboxMaxRetries,
		RetryBackoffBase: defaults.RetryBackoffBase,
		RetryBackoffMax:  defaults.RetryBackoffMax,
		RetentionDays:    c.Config.OutboxRetentionDays,
		CleanupInterval:  c.Config.OutboxCleanupInterval,
	}, c.Logger, c.Metrics)
	return nil
}

// Start launches the outbox relay, the hold sweeper and the sync
// subscription.
func (c *Container) Start(ctx context.Context) {
	ctx, c.stop = context.WithCancel(ctx)
	if c.Config.OutboxProcessorEnabled {
		c.OutboxProcessor.Start(ctx)
	}
	c.HoldSweeper.Start(ctx)
	if c.SyncConsumer != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.SyncConsumer.Run(ctx); err != nil && ctx.Err() == nil {
				c.Logger.Error("calendar sync consumer stopped", "error", err)
			}
		}()
	}
}

// Close stops the workers and releases every connection, in reverse
// order of acquisition.
func (c *Container) Close() {
	if c.stop != nil {
		c.stop()
	}
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.HoldSweeper != nil {
		c.HoldSweeper.Stop()
	}
	c.wg.Wait()

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("error closing resource", "error", err)
		}
	}
	c.closers = nil
}
