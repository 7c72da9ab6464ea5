package config

// AgentConfig declares one capability type: its admission limit, per-call
// deadline, and (optionally) the subprocess commands backing it. Multiple
// workers for the same agent act as primary + reassignment fallbacks.
type AgentConfig struct {
	MaxConcurrency int            `json:"max_concurrency,omitempty"` // admission limit (default 2)
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"` // per-invocation deadline (default 60)
	Workers        []WorkerConfig `json:"workers,omitempty"`         // subprocess-backed workers, in fallback order
}

// WorkerConfig defines a subprocess-backed worker.
type WorkerConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`        // CLI binary invoked per step
	Args    []string `json:"args,omitempty"` // default args prepended to every invocation
}

// RouteConfig maps one intent type to the ordered agent types that serve
// it. Independent routes get no dependency edges between steps, enabling
// parallel dispatch.
type RouteConfig struct {
	Agents      []string `json:"agents"`
	Independent bool     `json:"independent,omitempty"`
}

// RetryConfig configures the failure coordinator's backoff policy.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries"`         // same-worker retries before reassignment
	InitialIntervalMS int     `json:"initial_interval_ms"` // first backoff interval
	Multiplier        float64 `json:"multiplier"`          // backoff factor
}

// Config is the top-level configuration.
type Config struct {
	Agents map[string]AgentConfig `json:"agents"`
	Routes map[string]RouteConfig `json:"routes"`
	Retry  RetryConfig            `json:"retry"`
	DBPath string                 `json:"db_path,omitempty"` // sqlite audit store; empty disables persistence
}
