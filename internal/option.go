package internal

// AgentOption is a functional option for configuring the agent.
type AgentOption func(*agentApp)

type agentApp struct {
	config *AgentConfig
}

// WithAgentConfig sets the agent configuration.
func WithAgentConfig(cfg *AgentConfig) AgentOption {
	return func(a *agentApp) {
		a.config = cfg
	}
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*serverApp)

type serverApp struct {
	config *ServerConfig
}

// WithServerConfig sets the server configuration.
func WithServerConfig(cfg *ServerConfig) ServerOption {
	return func(a *serverApp) {
		a.config = cfg
	}
}
