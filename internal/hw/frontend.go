// Package hw holds the narrow hardware interfaces the session drives and
// their host implementations.
package hw

import (
	"sync"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/log"
)

// FrontEnd is the RF analog front-end.
type FrontEnd interface {
	Reset() error
	Configure(link core.Link) error
	EnableRF() error
	DisableRF() error
}

// NopFrontEnd stands in for the RF chip on hosts without one. It only logs
// and remembers the requested state.
type NopFrontEnd struct {
	mu   sync.Mutex
	link core.Link
	rf   bool
}

func (n *NopFrontEnd) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.link, n.rf = "", false
	log.GetLogger().WithField("component", "frontend").Debug("reset")
	return nil
}

func (n *NopFrontEnd) Configure(link core.Link) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.link = link
	log.GetLogger().WithField("component", "frontend").WithField("link", string(link)).Debug("configured")
	return nil
}

func (n *NopFrontEnd) EnableRF() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rf = true
	log.GetLogger().WithField("component", "frontend").Debug("rf enabled")
	return nil
}

func (n *NopFrontEnd) DisableRF() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rf = false
	log.GetLogger().WithField("component", "frontend").Debug("rf disabled")
	return nil
}

// State returns the configured link and whether RF is on.
func (n *NopFrontEnd) State() (core.Link, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.link, n.rf
}
