package negotiation

import (
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
)

// call is the mutable state of one negotiation. It owns pc exclusively and
// borrows the local tracks it attaches.
type call struct {
	gen      uint64
	role     domain.Role
	pc       core.PeerConnection
	attached map[string]struct{}

	remoteSet    bool
	offerPending bool
	renegotiate  bool
}

func (c *call) attach(t core.LocalTrack) error {
	if _, ok := c.attached[t.ID()]; ok {
		return nil
	}
	if err := c.pc.AddTrack(t); err != nil {
		return err
	}
	c.attached[t.ID()] = struct{}{}
	return nil
}

func (c *call) attachAll(tracks []core.LocalTrack) error {
	for _, t := range tracks {
		if err := c.attach(t); err != nil {
			return err
		}
	}
	return nil
}
