package control

import "fmt"

// Path selects how a caller delivers control actions to the host.
type Path string

const (
	// PathRelay sends control-action messages through the relay, so input
	// works before the data channel is open.
	PathRelay Path = "relay"
	// PathDataChannel sends msgpack envelopes over the peer data channel.
	PathDataChannel Path = "datachannel"
)

// ParsePath parses a configured path name. Empty means PathRelay.
func ParsePath(s string) (Path, error) {
	switch Path(s) {
	case "", PathRelay:
		return PathRelay, nil
	case PathDataChannel:
		return PathDataChannel, nil
	}
	return "", fmt.Errorf("unknown control path %q (want %q or %q)", s, PathRelay, PathDataChannel)
}
