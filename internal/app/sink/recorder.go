package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// ErrNoRecorder is returned for codecs that have no container writer.
var ErrNoRecorder = errors.New("no recorder for codec")

// NewRecorder opens a container file for the codec: Ogg for Opus, IVF for VP8.
func NewRecorder(dir, name, mimeType string) (Output, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	base := filepath.Join(dir, sanitize(name))
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		path := base + ".ogg"
		w, err := oggwriter.New(path, 48000, 2)
		if err != nil {
			return nil, "", err
		}
		return w, path, nil
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		path := base + ".ivf"
		w, err := ivfwriter.New(path)
		if err != nil {
			return nil, "", err
		}
		return w, path, nil
	default:
		return nil, "", fmt.Errorf("%w %s", ErrNoRecorder, mimeType)
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
