package scanner

import (
	"sync"

	"github.com/putto11262002/sabaipics-core/session"
)

// DiscoveredCamera is a camera past Init handshake and session preparation, not
// yet started (spec §3: "name, ip, connection_number, and an owned,
// prepared-but-not-started Session"). Exactly one caller may extract the Session;
// a camera left in the pool unextracted is disconnected by the Scanner.
type DiscoveredCamera struct {
	Name             string
	IP               string
	ConnectionNumber uint32

	mu        sync.Mutex
	sess      *session.Session
	extracted bool
}

func newDiscoveredCamera(name, ip string, connNum uint32, sess *session.Session) *DiscoveredCamera {
	return &DiscoveredCamera{Name: name, IP: ip, ConnectionNumber: connNum, sess: sess}
}

// HasActiveSession reports whether the Session has not yet been extracted or
// disconnected.
func (c *DiscoveredCamera) HasActiveSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && !c.extracted
}

// ExtractSession hands ownership of the prepared Session to the caller. A second
// call returns nil: the camera is consumed by exactly one caller (spec §3).
func (c *DiscoveredCamera) ExtractSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.extracted || c.sess == nil {
		return nil
	}
	c.extracted = true
	s := c.sess
	c.sess = nil
	return s
}

// Disconnect tears down the owned Session if it was never extracted. Safe to
// call on an already-extracted or already-disconnected camera.
func (c *DiscoveredCamera) Disconnect() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Disconnect()
}
