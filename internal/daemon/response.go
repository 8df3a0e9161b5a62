package daemon

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Message severities carried over the wire.
const (
	StatusInfo  = "INFO"
	StatusWarn  = "WARN"
	StatusError = "ERROR"
)

// Response is the envelope every IPC command answers with: human-readable
// messages plus an optional structured payload.
type Response struct {
	Messages []ResponseMessage `json:"messages"`
	Data     interface{}       `json:"data,omitempty"`
}

type ResponseMessage struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (r *Response) AddMessage(message string, status string) {
	r.Messages = append(r.Messages, ResponseMessage{
		Message: message,
		Status:  status,
	})
}

// AddErrorf appends a formatted ERROR message.
func (r *Response) AddErrorf(format string, args ...interface{}) {
	r.AddMessage(fmt.Sprintf(format, args...), StatusError)
}

func (r *Response) AddData(data interface{}) {
	r.Data = data
}

func (r *Response) ToJSON() string {
	bytes, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return string(bytes)
}

// LogMessages replays the daemon's messages through the client's logger
// at their original severity.
func (r *Response) LogMessages() {
	for _, message := range r.Messages {
		switch message.Status {
		case StatusWarn:
			slog.Warn(message.Message)
		case StatusError:
			slog.Error(message.Message)
		default:
			slog.Info(message.Message)
		}
	}
}
