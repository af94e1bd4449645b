// Package config provides configuration types and loading for agentdeck.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Backend, Channel, Jobs, Store, Audit.
type Config struct {
	Backend BackendConfig `json:"backend"`
	Channel ChannelConfig `json:"channel"`
	Jobs    JobsConfig    `json:"jobs"`
	Store   StoreConfig   `json:"store"`
	Audit   AuditConfig   `json:"audit"`
}

// Delivery modes for sending chat messages.
const (
	DeliverySync  = "sync"
	DeliveryAsync = "async"
)

// BackendConfig contains console backend settings.
type BackendConfig struct {
	BaseURL      string        `json:"baseUrl" envconfig:"BACKEND_URL"`
	Token        string        `json:"token" envconfig:"BACKEND_TOKEN"`
	AgentID      string        `json:"agentId" envconfig:"AGENT_ID"`
	WorkspaceID  string        `json:"workspaceId,omitempty" envconfig:"WORKSPACE_ID"`
	DeliveryMode string        `json:"deliveryMode" envconfig:"DELIVERY_MODE"` // "sync" or "async"
	Timeout      time.Duration `json:"timeout" envconfig:"BACKEND_TIMEOUT"`
}

// ChannelConfig contains duplex channel settings.
type ChannelConfig struct {
	Enabled       bool          `json:"enabled" envconfig:"CHANNEL_ENABLED"`
	URL           string        `json:"url" envconfig:"CHANNEL_URL"`
	AutoReconnect bool          `json:"autoReconnect" envconfig:"CHANNEL_AUTO_RECONNECT"`
	BackoffBase   time.Duration `json:"backoffBase" envconfig:"CHANNEL_BACKOFF_BASE"`
	BackoffMax    time.Duration `json:"backoffMax" envconfig:"CHANNEL_BACKOFF_MAX"`
}

// JobsConfig contains job polling settings.
type JobsConfig struct {
	PollInterval time.Duration `json:"pollInterval" envconfig:"JOB_POLL_INTERVAL"`
	MaxAttempts  int           `json:"maxAttempts" envconfig:"JOB_MAX_ATTEMPTS"`
}

// StoreConfig contains local transcript store settings.
type StoreConfig struct {
	Path string `json:"path" envconfig:"STORE_PATH"`
}

// AuditConfig contains the optional Kafka audit mirror settings.
// The mirror is disabled when Brokers is empty.
type AuditConfig struct {
	Brokers string `json:"brokers" envconfig:"AUDIT_BROKERS"`
	Topic   string `json:"topic" envconfig:"AUDIT_TOPIC"`
}
