package realtime

// Control message type tags shared by the ingest and monitor endpoints.
const (
	TypeConnected       = "connected"
	TypeHeartbeat       = "heartbeat"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeAdminCommand    = "admin_command"
	TypeInitialStatus   = "initial_status"
	TypeImageChunk      = "image_chunk"
	TypeCommandResponse = "command_response"
)

// inboundControl is the parsed form of a text frame from either endpoint.
type inboundControl struct {
	Type       string `json:"type"`
	Command    string `json:"command,omitempty"`
	TargetUID  string `json:"targetUid,omitempty"`
	ChunkCount *int   `json:"chunkCount,omitempty"`
}

// ConnectedMessage confirms a freshly accepted connection.
type ConnectedMessage struct {
	Type      string `json:"type"`
	UID       string `json:"uid,omitempty"`
	ExamID    string `json:"examId"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// PongMessage acknowledges a heartbeat or ping control message.
// ChunkCount echoes the client-reported counter when present.
type PongMessage struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	UID        string `json:"uid"`
	Message    string `json:"message"`
	ChunkCount *int   `json:"chunkCount,omitempty"`
}

// AdminCommandMessage carries a command to a participant connection.
type AdminCommandMessage struct {
	Type      string `json:"type"`
	Command   string `json:"command"`
	Timestamp int64  `json:"timestamp"`
	FromAdmin bool   `json:"fromAdmin"`
}

// ChunkMetadata precedes each raw chunk frame on the monitor endpoint.
type ChunkMetadata struct {
	Type      string `json:"type"`
	ExamID    string `json:"examId"`
	UID       string `json:"uid"`
	Timestamp int64  `json:"timestamp"`
	ChunkSize int    `json:"chunkSize"`
}

// CommandResponseMessage reports the outcome of a forwarded admin command.
type CommandResponseMessage struct {
	Type      string `json:"type"`
	TargetUID string `json:"targetUid"`
	Command   string `json:"command"`
	Success   bool   `json:"success"`
	Timestamp int64  `json:"timestamp"`
}

// StreamStatus is the per-participant entry of an initial_status push,
// derived from registry state only.
type StreamStatus struct {
	UID        string `json:"uid"`
	IsActive   bool   `json:"isActive"`
	LastUpdate int64  `json:"lastUpdate"`
	ChunkCount int    `json:"chunkCount"`
	HasVideo   bool   `json:"hasVideo"`
}

// InitialStatusMessage is the full-refresh snapshot pushed to a monitor on
// accept and on every status interval. Streams always reflects the registry;
// Status carries the aggregated participant view when the status source is
// reachable and is omitted otherwise.
type InitialStatusMessage struct {
	Type           string         `json:"type"`
	ExamID         string         `json:"examId"`
	Timestamp      int64          `json:"timestamp"`
	ActiveStudents int            `json:"activeStudents"`
	TotalStudents  int            `json:"totalStudents"`
	Streams        []StreamStatus `json:"streams"`
	Status         interface{}    `json:"status,omitempty"`
}
