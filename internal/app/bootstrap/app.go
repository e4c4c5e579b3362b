package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/wolfman30/leadflow/internal/automation"
	"github.com/wolfman30/leadflow/internal/automation/temporalrunner"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/documents"
	"github.com/wolfman30/leadflow/internal/events"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
	"github.com/wolfman30/leadflow/internal/notify"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/realtime"
	"github.com/wolfman30/leadflow/internal/reporting"
	"github.com/wolfman30/leadflow/internal/worker/sweeper"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Deps are the external clients an App may use. Any of them may be nil;
// the matching component then falls back to its in-process implementation.
type Deps struct {
	Pool     *pgxpool.Pool
	SQL      *sql.DB
	Redis    *redis.Client
	SQS      *sqs.Client
	Dynamo   *dynamodb.Client
	S3       *s3.Client
	SES      *sesv2.Client
	Temporal client.Client
}

// App is the fully wired lead lifecycle and automation runtime shared by
// the API and worker binaries.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry

	Leads      leads.Repository
	Lifecycle  *lifecycle.Service
	Workflows  *automation.Registry
	Runs       automation.RunStore
	Steps      automation.StepStore
	Executor   *automation.Executor
	Engine     *automation.Engine
	Queue      events.Queue
	Outbox     *events.OutboxStore
	Recorder   events.Recorder
	Hub        *realtime.Hub
	Documents  *documents.Service
	Reports    reporting.Source
	Sweeper    *sweeper.Sweeper
	Dispatcher automation.Dispatcher
}

// Build wires every component from cfg and deps.
func Build(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lifecycleMetrics := metrics.NewLifecycleMetrics(reg)
	automationMetrics := metrics.NewAutomationMetrics(reg)

	app := &App{Config: cfg, Logger: logger, Registry: reg, Hub: realtime.NewHub(logger)}

	if deps.Pool != nil {
		app.Leads = leads.NewPostgresRepository(deps.Pool)
	} else {
		app.Leads = leads.NewInMemoryRepository()
	}

	queue, err := buildQueue(cfg, deps)
	if err != nil {
		return nil, err
	}
	app.Queue = queue
	if deps.Pool != nil {
		app.Outbox = events.NewOutboxStore(deps.Pool)
		app.Recorder = events.Tee(app.Outbox, app.Hub)
	} else {
		app.Recorder = events.Tee(events.NewDirectRecorder(queue), app.Hub)
	}

	policy := lifecycle.Policy{
		DeadAfter:              cfg.DeadLeadAfter,
		InactiveAfter:          cfg.DeadLeadInactiveAfter,
		MaxRecommendedChannels: cfg.MaxRecommendedChannels,
		ContactedAfterAttempts: cfg.ContactedAfterAttempts,
	}
	app.Lifecycle = lifecycle.NewService(app.Leads, policy, logger,
		lifecycle.WithRecorder(app.Recorder),
		lifecycle.WithMetrics(lifecycleMetrics),
	)

	if strings.TrimSpace(cfg.WorkflowsFile) != "" {
		app.Workflows, err = automation.LoadRegistry(cfg.WorkflowsFile)
	} else {
		app.Workflows, err = automation.NewRegistry(automation.DefaultWorkflows()...)
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap: workflows: %w", err)
	}

	if deps.Dynamo != nil && cfg.AutomationRunsTable != "" {
		app.Runs = automation.NewDynamoRunStore(deps.Dynamo, cfg.AutomationRunsTable, logger)
	} else {
		app.Runs = automation.NewMemoryRunStore()
	}

	scheduler, err := app.buildScheduler(deps)
	if err != nil {
		return nil, err
	}

	var locker automation.Locker = automation.NewLocalLocker()
	if deps.Redis != nil {
		locker = automation.NewRedisLocker(deps.Redis)
	}

	app.Dispatcher = buildDispatcher(cfg, deps, logger)
	app.Executor = automation.NewExecutor(app.Leads, app.Workflows, app.Runs, logger,
		automation.WithScheduler(scheduler),
		automation.WithLocker(locker),
		automation.WithDispatcher(app.Dispatcher),
		automation.WithObserver(app.Lifecycle),
		automation.WithEventRecorder(app.Recorder),
		automation.WithAutomationMetrics(automationMetrics),
		automation.WithRetryPolicy(cfg.StepMaxAttempts, cfg.StepRetryBaseDelay),
		automation.WithLockTTL(cfg.LeadLockTTL),
	)
	app.Lifecycle.SetRunCanceller(app.Executor)

	var ledger automation.Ledger = events.NewMemoryProcessedStore()
	if deps.Pool != nil {
		ledger = events.NewProcessedStore(deps.Pool)
	}
	app.Engine = automation.NewEngine(app.Workflows, app.Executor, ledger, automationMetrics, logger)

	var storage documents.Storage = documents.NewMemoryStore()
	if deps.S3 != nil && cfg.DocumentsBucket != "" {
		storage = documents.NewS3Store(deps.S3, cfg.DocumentsBucket, logger)
	}
	app.Documents = documents.NewService(app.Leads, storage, app.Lifecycle, logger)

	if deps.SQL != nil {
		app.Reports = reporting.NewSQLSource(deps.SQL)
	} else {
		app.Reports = reporting.NewRepositorySource(app.Leads)
	}

	app.Sweeper = sweeper.New(app.Leads, app.Lifecycle, app.Engine, logger).
		WithInterval(cfg.SweepInterval).
		WithBatchSize(cfg.SweepBatchSize)

	logger.Info("runtime configured",
		"postgres", deps.Pool != nil,
		"redis_locks", deps.Redis != nil,
		"memory_queue", cfg.UseMemoryQueue,
		"scheduler", cfg.AutomationScheduler,
		"workflows", len(app.Workflows.List()),
	)
	return app, nil
}

func buildQueue(cfg *appconfig.Config, deps Deps) (events.Queue, error) {
	if cfg.UseMemoryQueue {
		return events.NewMemoryQueue(256), nil
	}
	if deps.SQS == nil || cfg.LeadEventsQueueURL == "" {
		return nil, fmt.Errorf("bootstrap: LEAD_EVENTS_QUEUE_URL and an SQS client are required unless USE_MEMORY_QUEUE=true")
	}
	return events.NewSQSQueue(deps.SQS, cfg.LeadEventsQueueURL), nil
}

func (a *App) buildScheduler(deps Deps) (automation.Scheduler, error) {
	if a.Config.UseTemporal() {
		if deps.Temporal == nil {
			return nil, fmt.Errorf("bootstrap: AUTOMATION_SCHEDULER=temporal requires a temporal client")
		}
		return temporalrunner.NewScheduler(deps.Temporal, a.Config.TemporalTaskQueue, a.Logger), nil
	}
	if deps.Pool != nil {
		a.Steps = automation.NewPostgresStepStore(deps.Pool)
	} else {
		a.Steps = automation.NewMemoryStepStore()
	}
	return automation.NewStoreScheduler(a.Steps), nil
}

// buildDispatcher uses real providers once any is configured; with none the
// simulated dispatcher keeps local runs moving.
func buildDispatcher(cfg *appconfig.Config, deps Deps, logger *logging.Logger) automation.Dispatcher {
	providers := notify.ProviderConfig{
		EmailProvider: cfg.EmailProvider,
		SendGrid: notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		},
		SES: notify.SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SendGridFromName},
		Twilio: notify.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		},
	}
	sms := notify.NewSMSSender(providers, logger)
	if cfg.EmailProvider == "stub" && sms == nil {
		logger.Info("no outbound providers configured, using simulated dispatcher")
		return automation.SimulatedDispatcher{}
	}
	var email notify.EmailSender
	if deps.SES != nil {
		email = notify.NewEmailSender(providers, deps.SES, logger)
	} else {
		email = notify.NewEmailSender(providers, nil, logger)
	}
	if email == nil || cfg.EmailProvider == "stub" {
		logger.Warn("email channel unavailable; email actions will be skipped", "provider", cfg.EmailProvider)
	}
	return automation.NewProviderDispatcher(email, sms, logger)
}

// StartWorkers runs the background loops in goroutines and returns a
// function that blocks until they exit after ctx is cancelled.
func (a *App) StartWorkers(ctx context.Context) func() {
	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	consumer := automation.NewConsumer(a.Queue, a.Leads, a.Engine, a.Logger)
	consumer.Start(ctx)

	if a.Steps != nil {
		runner := automation.NewStepRunner(a.Steps, a.Executor, a.Logger).
			WithInterval(a.Config.StepPollInterval).
			WithBatchSize(a.Config.StepBatchSize).
			WithRetryPolicy(a.Config.StepMaxAttempts, a.Config.StepRetryBaseDelay)
		run(runner.Start)
	}
	if a.Outbox != nil {
		deliverer := events.NewDeliverer(a.Outbox, events.NewQueueDelivery(a.Queue), a.Logger).
			WithInterval(a.Config.OutboxInterval)
		run(deliverer.Start)
	}
	run(a.Sweeper.Run)

	return func() {
		wg.Wait()
		consumer.Wait()
	}
}
