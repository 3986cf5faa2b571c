// ABOUTME: mDNS discovery of the guest audio bridge
// ABOUTME: Browses for bridge advertisements when no address is configured
package discovery

import (
	"context"
	"log"

	"github.com/hashicorp/mdns"
)

// serviceType is the bridge's mDNS advertisement.
const serviceType = "_spicy-kvm._tcp"

// BridgeInfo describes a discovered bridge endpoint.
type BridgeInfo struct {
	Name string
	Host string
	Port int
}

// Manager browses for bridge advertisements.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	bridges chan *BridgeInfo
}

// NewManager creates a discovery manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:     ctx,
		cancel:  cancel,
		bridges: make(chan *BridgeInfo, 10),
	}
}

// Browse starts searching for bridges in the background.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				bridge := &BridgeInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				log.Printf("Discovered bridge: %s at %s:%d", bridge.Name, bridge.Host, bridge.Port)

				select {
				case m.bridges <- bridge:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Bridges returns the channel of discovered bridges.
func (m *Manager) Bridges() <-chan *BridgeInfo {
	return m.bridges
}

// Stop stops browsing.
func (m *Manager) Stop() {
	m.cancel()
}
