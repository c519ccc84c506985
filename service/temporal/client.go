package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
)

const schedulePrefix = "sync-"

// Client manages wallet sync schedules and on-demand syncs in Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// ScheduleInfo describes one wallet sync schedule.
type ScheduleInfo struct {
	ID       string        `json:"id"`
	Chain    string        `json:"chain"`
	Address  string        `json:"address"`
	Interval time.Duration `json:"interval"`
	Paused   bool          `json:"paused"`
	NextRun  *time.Time    `json:"next_run,omitempty"`
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "temporal_client")

	logger.Debug("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// UpsertSyncSchedule creates the sync schedule for a wallet, or updates its
// interval and arguments when it already exists.
func (c *Client) UpsertSyncSchedule(ctx context.Context, input SyncWalletInput, interval time.Duration) error {
	id := ScheduleID(input.Chain, input.Address)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one", "schedule_id", id, "error", err)
		return c.createSyncSchedule(ctx, id, input, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			in.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			in.Description.Schedule.Action = c.syncAction(input)
			return &client.ScheduleUpdate{
				Schedule: &in.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "schedule_id", id, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("wallet sync schedule updated",
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

func (c *Client) createSyncSchedule(ctx context.Context, id string, input SyncWalletInput, interval time.Duration) error {
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: c.syncAction(input),
		Memo: map[string]interface{}{
			"chain":          input.Chain,
			"wallet_address": input.Address,
			"created_by":     "unmarshall",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule", "schedule_id", id, "error", err)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("wallet sync schedule created",
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

func (c *Client) syncAction(input SyncWalletInput) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "sync-wallet-" + input.Chain + "-" + input.Address,
		Workflow:  SyncWalletWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{input},
	}
}

// DeleteSyncSchedule deletes the sync schedule for a wallet.
func (c *Client) DeleteSyncSchedule(ctx context.Context, chain, address string) error {
	id := ScheduleID(chain, address)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule", "schedule_id", id, "error", err)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("wallet sync schedule deleted", "schedule_id", id)
	return nil
}

// ListSyncSchedules returns every wallet sync schedule in the namespace.
func (c *Client) ListSyncSchedules(ctx context.Context) ([]ScheduleInfo, error) {
	iter, err := c.client.ScheduleClient().List(ctx, client.ScheduleListOptions{PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var schedules []ScheduleInfo
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate schedules: %w", err)
		}

		chain, address, ok := ParseScheduleID(entry.ID)
		if !ok {
			continue
		}

		info := ScheduleInfo{
			ID:      entry.ID,
			Chain:   chain,
			Address: address,
			Paused:  entry.Paused,
		}
		if entry.Spec != nil && len(entry.Spec.Intervals) > 0 {
			info.Interval = entry.Spec.Intervals[0].Every
		}
		if len(entry.NextActionTimes) > 0 {
			next := entry.NextActionTimes[0]
			info.NextRun = &next
		}
		schedules = append(schedules, info)
	}
	return schedules, nil
}

// SyncWallet runs SyncWalletWorkflow for one wallet and waits for its result.
func (c *Client) SyncWallet(ctx context.Context, input SyncWalletInput) (*SyncWalletResult, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "sync-wallet-" + input.Chain + "-" + input.Address + "-manual",
		TaskQueue: c.taskQueue,
	}, SyncWalletWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync workflow: %w", err)
	}

	c.logger.Debug("sync workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	var result SyncWalletResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("sync workflow failed: %w", err)
	}
	return &result, nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.client.Close()
}

// ScheduleID returns the schedule ID for a wallet: "sync-{chain}-{address}".
func ScheduleID(chain, address string) string {
	return schedulePrefix + chain + "-" + address
}

// ParseScheduleID is the inverse of ScheduleID. Chain names never contain "-".
func ParseScheduleID(id string) (chain, address string, ok bool) {
	rest, found := strings.CutPrefix(id, schedulePrefix)
	if !found {
		return "", "", false
	}
	chain, address, ok = strings.Cut(rest, "-")
	if !ok || chain == "" || address == "" {
		return "", "", false
	}
	return chain, address, true
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
