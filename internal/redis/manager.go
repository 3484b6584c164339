package redis

import (
	"fmt"
	"sync"

	"github.com/redis/rueidis"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

const (
	// CacheDBIndex stores temporary data like translations and API responses.
	CacheDBIndex = 0
)

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

// Enabled reports whether a Redis host is configured.
func (m *Manager) Enabled() bool {
	return m.config.Host != ""
}

// GetClient retrieves or creates a Redis client for the specified database index.
func (m *Manager) GetClient(dbIndex int) (rueidis.Client, error) {
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
		ClientName:  "neurobot",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", dbIndex, err)
	}

	m.clients[dbIndex] = client
	m.logger.Info("Created new Redis client", zap.Int("dbIndex", dbIndex))
	return client, nil
}

// Cache returns the cache backed by CacheDBIndex, or a disabled cache when
// Redis is not configured or unreachable.
func (m *Manager) Cache() *Cache {
	if !m.Enabled() {
		m.logger.Info("Redis not configured, caching disabled")
		return NewCache(nil, m.logger)
	}

	client, err := m.GetClient(CacheDBIndex)
	if err != nil {
		m.logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		return NewCache(nil, m.logger)
	}

	return NewCache(client, m.logger)
}

// Close gracefully shuts down all active Redis clients in the pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		m.logger.Info("Closed Redis client", zap.Int("dbIndex", dbIndex))
	}
	clear(m.clients)
}
