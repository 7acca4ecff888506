package entity

import (
	"fmt"
	"strings"
)

// Network is one of the supported chains, always stored lowercase.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkOptimism Network = "optimism"
	NetworkBase     Network = "base"
)

var validNetworks = map[Network]bool{
	NetworkEthereum: true,
	NetworkPolygon:  true,
	NetworkArbitrum: true,
	NetworkOptimism: true,
	NetworkBase:     true,
}

// ParseNetwork lowercases and validates a network tag against the closed set.
func ParseNetwork(raw string) (Network, error) {
	n := Network(strings.ToLower(raw))
	if !validNetworks[n] {
		return "", fmt.Errorf("unsupported network %q", raw)
	}
	return n, nil
}
