package sink

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Relay pumps one remote track into its outputs.
type Relay struct {
	Src core.RemoteTrack

	mu   sync.RWMutex
	outs map[string]*outTrack

	cancel context.CancelFunc
	done   chan struct{}
}

func newRelay(src core.RemoteTrack, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:    src,
		outs:   make(map[string]*outTrack),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// loop reads RTP from the source until ctx ends or the track stops, then
// closes every output.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	defer r.closeAll(logger)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done")
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outs)
	r.mu.RUnlock()

	var dirty []string
	for name, ot := range snapshot {
		switch ot.State() {
		case OutputDelete:
			dirty = append(dirty, name)
		case OutputMuted:
		case OutputOk:
			if err := ot.out.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("output", name).Msg("write RTP failed, dropping output")
				ot.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty, logger)
	}
}

func (r *Relay) cleanupDeleted(dirty []string, logger *zerolog.Logger) {
	r.mu.Lock()
	closing := make([]*outTrack, 0, len(dirty))
	for _, name := range dirty {
		if ot, ok := r.outs[name]; ok {
			closing = append(closing, ot)
			delete(r.outs, name)
		}
	}
	r.mu.Unlock()
	for _, ot := range closing {
		closeOutput(ot, logger)
	}
}

func (r *Relay) closeAll(logger *zerolog.Logger) {
	r.mu.Lock()
	outs := r.outs
	r.outs = make(map[string]*outTrack)
	r.mu.Unlock()
	for _, ot := range outs {
		ot.MarkDelete()
		closeOutput(ot, logger)
	}
}

func closeOutput(ot *outTrack, logger *zerolog.Logger) {
	if err := ot.out.Close(); err != nil {
		logger.Warn().Err(err).Str("output", ot.name).Msg("close output")
	}
}

func (r *Relay) addOutput(name string, out Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs[name] = newOutTrack(name, out)
}

func (r *Relay) setMuted(muted bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ot := range r.outs {
		if ot.State() == OutputDelete {
			continue
		}
		if muted {
			ot.MarkMuted()
		} else {
			ot.MarkOk()
		}
	}
}
