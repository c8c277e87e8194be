// Package config holds the configuration types shared by the CLI and the
// call manager. Identity is passed in explicitly at construction time —
// there is no ambient "current user" global.
package config

// Identity describes the local participant as seen by remote peers.
type Identity struct {
	ID     string // stable user identifier, used for signaling routing
	Name   string // display name, informational only
	Avatar string // avatar reference, informational only
}

// MediaConstraints expresses the preferred local capture quality. These are
// ideals, not hard requirements — a source may deliver less.
type MediaConstraints struct {
	Audio  bool
	Video  bool
	Width  int
	Height int
}

// DefaultMediaConstraints asks for audio plus 1280×720 video.
func DefaultMediaConstraints() MediaConstraints {
	return MediaConstraints{
		Audio:  true,
		Video:  true,
		Width:  1280,
		Height: 720,
	}
}

// Config stores all parameters gathered from CLI flags or interactive prompts.
type Config struct {
	Identity Identity
	RelayURL string // WebSocket URL of the signaling relay
	PeerID   string // optional: peer to call immediately on startup
	Debug    bool
}
