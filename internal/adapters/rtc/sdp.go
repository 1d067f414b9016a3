package rtc

import (
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// mediaSections parses desc and returns the media kind of every m= section.
func mediaSections(desc webrtc.SessionDescription) ([]string, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return nil, fmt.Errorf("parse %s sdp: %w", desc.Type, err)
	}
	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, m := range parsed.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds, nil
}
