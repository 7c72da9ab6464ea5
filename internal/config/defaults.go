package config

// DefaultConfig returns the built-in agents, intent routes, and retry
// policy. Every known intent type must have a route here; the plan
// builder falls back to the tutor for anything unmapped.
func DefaultConfig() *Config {
	return &Config{
		Agents: map[string]AgentConfig{
			"planner": {
				MaxConcurrency: 2,
				TimeoutSeconds: 60,
			},
			"coder": {
				MaxConcurrency: 4,
				TimeoutSeconds: 120,
			},
			"tutor": {
				MaxConcurrency: 4,
				TimeoutSeconds: 45,
			},
			"deployment": {
				MaxConcurrency: 1,
				TimeoutSeconds: 180,
			},
		},
		Routes: map[string]RouteConfig{
			"create_project": {
				Agents: []string{"planner", "coder"},
			},
			"debug_error": {
				Agents:      []string{"tutor", "coder"},
				Independent: true,
			},
			"deploy_app": {
				Agents: []string{"coder", "deployment"},
			},
			"explain_concept": {
				Agents: []string{"tutor"},
			},
		},
		Retry: RetryConfig{
			MaxRetries:        2,
			InitialIntervalMS: 1000,
			Multiplier:        2.0,
		},
	}
}
