package samlspflow

import (
	"github.com/philiph/samlspflow/internal/adapters/driven/state"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// Re-export the protocol state store port and the bundled backends.
type StateStore = ports.StateStore
type StateTx = ports.StateTx

var (
	NewMemoryStateStore = state.NewMemory
	NewRedisStateStore  = state.NewRedis
)
