package sink

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type OutputState int32

const (
	OutputOk OutputState = iota
	OutputMuted
	OutputDelete
)

// Output consumes the RTP stream of one remote track.
type Output interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// outTrack wraps an Output with its delivery state.
type outTrack struct {
	name  string
	out   Output
	state atomic.Int32 // zero is OutputOk
}

func newOutTrack(name string, out Output) *outTrack {
	return &outTrack{name: name, out: out}
}

func (ot *outTrack) State() OutputState { return OutputState(ot.state.Load()) }
func (ot *outTrack) MarkOk()            { ot.state.Store(int32(OutputOk)) }
func (ot *outTrack) MarkMuted()         { ot.state.Store(int32(OutputMuted)) }
func (ot *outTrack) MarkDelete()        { ot.state.Store(int32(OutputDelete)) }

// Counter tallies received packets and payload bytes.
type Counter struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
}

func (c *Counter) WriteRTP(pkt *rtp.Packet) error {
	c.packets.Add(1)
	c.bytes.Add(uint64(len(pkt.Payload)))
	return nil
}

func (c *Counter) Close() error { return nil }

func (c *Counter) Packets() uint64 { return c.packets.Load() }
func (c *Counter) Bytes() uint64   { return c.bytes.Load() }
