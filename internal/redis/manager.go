package redis

import (
	"errors"
	"fmt"
	"sync"

	"github.com/redis/rueidis"
	"github.com/robalyx/legalgate/internal/setup/config"
	"go.uber.org/zap"
)

const (
	// GraceDBIndex holds the short-lived post-consent grace flags
	// in database 2 so they can be flushed without touching anything else.
	GraceDBIndex = 2

	// WorkerStatusDBIndex uses database 4 for tracking worker heartbeats and status
	// to monitor worker health and activity.
	WorkerStatusDBIndex = 4
)

// ErrRedisNotConfigured is returned when a client is requested without a configured host.
var ErrRedisNotConfigured = errors.New("redis is not configured")

// Manager maintains a thread-safe mapping of database indices to Redis clients.
// Each database index gets its own dedicated connection pool through rueidis.
type Manager struct {
	clients map[int]rueidis.Client
	config  *config.Redis
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewManager initializes the Redis connection manager with an empty client pool.
// Actual client connections are created lazily when first requested.
func NewManager(config *config.Redis, logger *zap.Logger) *Manager {
	return &Manager{
		clients: make(map[int]rueidis.Client),
		config:  config,
		logger:  logger.Named("redis"),
	}
}

// Enabled reports whether a Redis server is configured.
func (m *Manager) Enabled() bool {
	return m.config != nil && m.config.Host != ""
}

// GetClient retrieves or creates a Redis client for the specified database index.
func (m *Manager) GetClient(dbIndex int) (rueidis.Client, error) {
	if !m.Enabled() {
		return nil, ErrRedisNotConfigured
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[dbIndex]; exists {
		return client, nil
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)},
		Username:    m.config.Username,
		Password:    m.config.Password,
		SelectDB:    dbIndex,
		ClientName:  "legalgate",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", dbIndex, err)
	}

	m.clients[dbIndex] = client
	m.logger.Info("Created new Redis client", zap.Int("dbIndex", dbIndex))

	return client, nil
}

// Close gracefully shuts down all active Redis clients in the pool.
// Safe to call multiple times as it cleans up only existing connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		delete(m.clients, dbIndex)
		m.logger.Info("Closed Redis client", zap.Int("dbIndex", dbIndex))
	}
}
