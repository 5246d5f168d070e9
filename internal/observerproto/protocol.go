package observerproto

import "pixelcraft.ai/internal/sim/world"

// Version is the observer protocol version.
const Version = "0.2"

// Client -> Server. First message on the observer WS connection; it can be
// re-sent to change the frame stride.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Every Nth frame is delivered. Zero means every frame.
	Every int `json:"every,omitempty"`
}

// Client -> Server. Moves the camera to a global pixel position.
type CameraMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
}

// Server -> Client. Sent after world steps, subject to the subscriber stride.
type FrameMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Stats           world.FrameStats `json:"stats"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	WorldName       string       `json:"world_name"`
	Tick            uint64       `json:"tick"`
	WorldParams     WorldParams  `json:"world_params"`
	Palette         []PaletteRow `json:"palette"`
}

type WorldParams struct {
	TickRateHz int    `json:"tick_rate_hz"`
	ChunkSize  [2]int `json:"chunk_size"`
	ArraySize  [2]int `json:"array_size"`
	TickZone   [2]int `json:"tick_zone"`
	MeshZone   [2]int `json:"mesh_zone"`
	Seed       int64  `json:"seed"`
	Generator  string `json:"generator"`
}

type PaletteRow struct {
	ID    uint16 `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
	Color uint32 `json:"color"`
}
