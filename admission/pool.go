/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"

	"github.com/acronis/go-appkit/lrucache"
)

// DefaultPoolMaxKeys is a default value of the maximum keys number for the ControllerPool.
const DefaultPoolMaxKeys = 10000

// ControllerPool manages independent Controllers, one per key (e.g. per route
// or per downstream service). All controllers share the same configuration and
// options but adapt their refill rates independently, since different resources
// have different performance baselines.
//
// Controllers are kept in an LRU zone, so rarely used keys are evicted together
// with their accumulated state once maxKeys is exceeded.
type ControllerPool struct {
	controllers   *lrucache.LRUCache[string, *Controller]
	newController func() *Controller
}

// NewControllerPool creates a new ControllerPool.
// The config is validated once here; pass 0 as maxKeys for a reasonable default.
func NewControllerPool(cfg *Config, maxKeys int, opts Opts) (*ControllerPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate admission config: %w", err)
	}
	if maxKeys == 0 {
		maxKeys = DefaultPoolMaxKeys
	}
	controllers, err := lrucache.New[string, *Controller](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU zone for controllers: %w", err)
	}
	return &ControllerPool{
		controllers: controllers,
		newController: func() *Controller {
			c, _ := NewWithOpts(cfg, opts) // Error is always nil here, the config is already validated.
			return c
		},
	}, nil
}

// Get returns the Controller for the key, creating it on first use.
func (p *ControllerPool) Get(key string) *Controller {
	c, _ := p.controllers.GetOrAdd(key, p.newController)
	return c
}

// Len returns the number of controllers currently in the pool.
func (p *ControllerPool) Len() int {
	return p.controllers.Len()
}
