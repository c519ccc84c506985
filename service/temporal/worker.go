package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/unmarshall/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	APIClient APIClientInterface
	Store     StoreInterface
	Publisher PublisherInterface // Optional: if nil, events are not published
	Metrics   *metrics.Metrics   // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker connects to Temporal and registers the sync workflow and its activities.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(SyncWalletWorkflow)
	logger.Info("registered workflow", "name", "SyncWalletWorkflow")

	activities := NewActivities(config.APIClient, config.Store, config.Publisher, config.Metrics, logger)
	registerActivities(w, activities)

	logger.Info("registered activities", "activities", activityNames)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

var activityNames = []string{
	"FetchTransactions",
	"WriteTransactions",
	"PublishTransactions",
	"FetchBalances",
	"WriteBalanceSnapshot",
	"CompleteSync",
}

type activityRegistry interface {
	RegisterActivity(a interface{})
}

func registerActivities(r activityRegistry, activities *Activities) {
	r.RegisterActivity(activities.FetchTransactions)
	r.RegisterActivity(activities.WriteTransactions)
	r.RegisterActivity(activities.PublishTransactions)
	r.RegisterActivity(activities.FetchBalances)
	r.RegisterActivity(activities.WriteBalanceSnapshot)
	r.RegisterActivity(activities.CompleteSync)
}

// Start begins processing workflows and activities.
// This method blocks until the process is interrupted or an error occurs.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
