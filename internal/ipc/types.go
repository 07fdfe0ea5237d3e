package ipc

type CommandType string

const (
	CommandStop     CommandType = "stop"
	CommandSnapshot CommandType = "snapshot"
	CommandStatus   CommandType = "status"
)

type Command struct {
	Type CommandType `json:"type"`
	Args []string    `json:"args"`
}

// SessionInterface is what the control server needs from a running compositor.
// Implementations must be safe to call from the server goroutines.
type SessionInterface interface {
	Status() SessionStatus
	EnqueueCommand(Command) error
}

// SessionStatus is the compositor state reported by GET /status.
type SessionStatus struct {
	State         string     `json:"state"`
	Backend       string     `json:"backend"`
	HardwareAccel bool       `json:"hardware_accel"`
	WaylandSocket string     `json:"wayland_socket"`
	Frames        uint64     `json:"frames"`
	LastSequence  uint32     `json:"last_sequence"`
	FrameInterval string     `json:"frame_interval"`
	Windows       int        `json:"windows"`
	Output        OutputInfo `json:"output"`
}

type OutputInfo struct {
	Connector uint32 `json:"connector"`
	Encoder   uint32 `json:"encoder"`
	Crtc      uint32 `json:"crtc"`
	Mode      string `json:"mode"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Refresh   uint32 `json:"refresh"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
	PID     int    `json:"pid"`
	Socket  string `json:"socket"`
	Config  string `json:"config"`
	SessionStatus
}

type SnapshotRequest struct {
	Path string `json:"path"`
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
