package models

const (
	FrameDelta = "delta"
	FrameDone  = "done"
	FrameError = "error"
)

// WSFrame is a single message on the chat WebSocket.
type WSFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}
