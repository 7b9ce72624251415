// Package core holds the pieces shared by background workers.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often workers report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a reported status stays in Redis.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a silent worker is considered offline.
	StaleThreshold = time.Minute

	statusKeyPrefix = "worker:"
)

// Status represents a worker's current state.
type Status struct {
	WorkerID    string    `json:"workerId"`
	WorkerType  string    `json:"workerType"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Progress    int       `json:"progress"`
	Processed   int64     `json:"processed"`
	IsHealthy   bool      `json:"isHealthy"`
}

// IsStale reports whether the worker has not been heard from recently.
func (s *Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

// Monitor stores and reads worker statuses in Redis.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("worker_monitor"),
	}
}

// ReportStatus stores a worker's status with a TTL.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKeyPrefix + status.WorkerType + ":" + status.WorkerID
	err = m.client.Do(ctx, m.client.B().Set().Key(key).Value(string(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// GetAllStatuses returns the status of every worker that reported within the TTL.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	var (
		keys   []string
		cursor uint64
	)

	for {
		entry, err := m.client.Do(ctx,
			m.client.B().Scan().Cursor(cursor).Match(statusKeyPrefix+"*").Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}

		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	statuses := make([]Status, 0, len(keys))
	for _, key := range keys {
		data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).AsBytes()
		if err != nil {
			if !rueidis.IsRedisNil(err) {
				m.logger.Error("Failed to get worker status", zap.String("key", key), zap.Error(err))
			}
			continue
		}

		var status Status
		if err := sonic.Unmarshal(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal worker status", zap.String("key", key), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}
