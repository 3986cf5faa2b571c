// ABOUTME: Tests for mDNS bridge discovery
// ABOUTME: Tests manager construction and shutdown
package discovery

import (
	"testing"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager()
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.Bridges() == nil {
		t.Error("expected a bridges channel")
	}
	mgr.Stop()

	select {
	case <-mgr.ctx.Done():
	default:
		t.Error("expected context cancelled after Stop")
	}
}
