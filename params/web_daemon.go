package params

import "time"

type WebDaemonConfig struct {
	ListenerConfig
	DataDir string

	// MaxDevices bounds the number of live per-device engines.
	MaxDevices int

	// LastKnownTTL expires cached last estimates.
	LastKnownTTL time.Duration

	// BeaconRegistryPath is an optional GeoJSON beacon registry.
	BeaconRegistryPath string

	Engine *EngineConfig
}

func DefaultWebListenerConfig() ListenerConfig {
	return ListenerConfig{
		Network: "tcp",
		Address: "localhost:3000",
	}
}

func DefaultWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		DataDir:        DefaultDatadirRoot,
		ListenerConfig: DefaultWebListenerConfig(),
		MaxDevices:     128,
		LastKnownTTL:   CacheLastKnownTTL,
		Engine:         DefaultEngineConfig(),
	}
}

func DefaultTestWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		DataDir: "",
		ListenerConfig: ListenerConfig{
			Network: "tcp",
			Address: "localhost:3333",
		},
		MaxDevices:   4,
		LastKnownTTL: time.Minute,
		Engine:       DefaultEngineConfig(),
	}
}

func (c *WebDaemonConfig) Validate() error {
	if err := c.ListenerConfig.Validate(); err != nil {
		return err
	}
	if c.MaxDevices < 1 {
		return invalid("max devices must be >= 1, got %d", c.MaxDevices)
	}
	if err := positiveDuration("last known ttl", c.LastKnownTTL); err != nil {
		return err
	}
	return c.Engine.Validate()
}
