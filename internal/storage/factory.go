// Package storage selects the Storage backend from configuration.
package storage

import (
	"fmt"
	"strings"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/storage/memory"
	"github.com/mbelgrano/cartera/internal/storage/surrealdb"
)

// New creates the Storage backend named by config. The memory driver holds
// nothing across restarts and exists for development and tests.
func New(logger *common.Logger, config *common.Config) (interfaces.Storage, error) {
	driver := strings.ToLower(strings.TrimSpace(config.Storage.Driver))

	switch driver {
	case "", "surrealdb":
		return surrealdb.NewManager(logger, config)
	case "memory":
		logger.Warn().Msg("Using in-memory storage, data will not survive restarts")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}
}
