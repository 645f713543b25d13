package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spec-kit/ticket-portal/internal/events"
)

// Frame is one server-sent event.
type Frame struct {
	Event events.EventType
	Data  any
}

// Encode renders the frame in text/event-stream format.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Event, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + len(f.Event) + 16)
	buf.WriteString("event: ")
	buf.WriteString(string(f.Event))
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// FlushWriter is the transport side of a stream. A write or flush error means
// the client is gone.
type FlushWriter interface {
	io.Writer
	Flush() error
}

func writeFrame(w FlushWriter, f Frame) error {
	payload, err := f.Encode()
	if err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}
