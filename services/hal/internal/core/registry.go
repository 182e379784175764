package core

import (
	"sync"

	"ccs811-go/types"
)

var (
	regMu    sync.RWMutex
	builders = map[string]Builder{}
)

// RegisterBuilder makes a device type available to HAL configs. Builders
// register from init functions; a duplicate type is a programming error.
func RegisterBuilder(typ string, b Builder) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := builders[typ]; exists {
		panic("duplicate device builder: " + typ)
	}
	builders[typ] = b
}

func lookupBuilder(typ string) (Builder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := builders[typ]
	return b, ok
}

// Public HAL config type is in ccs811-go/types
type HALConfig = types.HALConfig
type HALDevice = types.HALDevice
