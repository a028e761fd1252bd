package node

import (
	"fmt"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/objectstore"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/utils"
)

// DefaultObjectStoreBackend is the object store backend of nodes whose
// configuration does not specify one.
const DefaultObjectStoreBackend = "mem"

// Config is the configuration of a node.
// The struct is meant to be encoded and decoded to JSON with the
// standard library's encoding/json package.
type Config struct {
	ID heagg.NodeID
	// Address is the address of the gRPC transport. Empty disables it.
	Address heagg.NodeAddress
	// HTTPAddress is the address of the JSON gateway. Empty disables it.
	HTTPAddress heagg.NodeAddress
	// MaxConnections limits the number of simultaneous connections accepted
	// by each transport. Zero means no limit.
	MaxConnections int
	// MaxBodySize is the maximum size of a JSON gateway request body.
	// Zero means jsonapi.DefaultMaxBodySize.
	MaxBodySize       int64
	ComputeConfig     compute.ServiceConfig
	ObjectStoreConfig objectstore.Config
}

// LoadConfigFromFile loads a node configuration from a JSON file.
func LoadConfigFromFile(filename string) (Config, error) {
	var config Config
	if err := utils.UnmarshalJSONFromFile(filename, &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ValidateConfig checks that the configuration is valid.
func ValidateConfig(config Config) error {
	if len(config.ID) == 0 {
		return fmt.Errorf("config must specify a node ID")
	}
	if len(config.Address) == 0 && len(config.HTTPAddress) == 0 {
		return fmt.Errorf("config must specify at least one of Address and HTTPAddress")
	}
	if config.MaxConnections < 0 {
		return fmt.Errorf("MaxConnections must be non-negative, got %d", config.MaxConnections)
	}
	if config.MaxBodySize < 0 {
		return fmt.Errorf("MaxBodySize must be non-negative, got %d", config.MaxBodySize)
	}
	return nil
}
