package params

import "slices"

// ListenerNetworks are the networks net.Listen accepts for stream servers.
var ListenerNetworks = []string{"tcp", "tcp4", "tcp6", "unix"}

type ListenerConfig struct {
	// Network is one of ListenerNetworks.
	Network string
	// Address is host:port for tcp networks, a socket path for unix.
	Address string
}

func (c ListenerConfig) Validate() error {
	if !slices.Contains(ListenerNetworks, c.Network) {
		return invalid("network must be one of %v, got %q", ListenerNetworks, c.Network)
	}
	if c.Address == "" {
		return invalid("listen address must be set")
	}
	return nil
}
