package decode

import (
	"log/slog"

	"github.com/periscope-kvm/periscope/media"
)

// Message is the closed set of inputs accepted by the Worker. The marker
// method keeps the set closed so dispatch can switch exhaustively instead
// of branching on string tags.
type Message interface {
	isMessage()
}

// Init configures and creates the worker's decoder. It must be posted once
// before any VideoData.
type Init struct {
	Config Config
}

// VideoData carries one encoded chunk. Ownership of the byte slice transfers
// to the worker; the sender must not touch it afterwards.
type VideoData struct {
	Data []byte
}

func (Init) isMessage()      {}
func (VideoData) isMessage() {}

// Event is the closed set of outputs emitted by the Worker.
type Event interface {
	isEvent()
}

// FrameEvent carries a decoded frame. Ownership transfers to the receiver,
// which must release the frame after exactly one draw.
type FrameEvent struct {
	Frame *media.Frame
}

// LogEvent carries diagnostic text from the decode path. All decode-path
// errors are converted to LogEvents; none terminate the worker.
type LogEvent struct {
	Level   slog.Level
	Message string
}

func (FrameEvent) isEvent() {}
func (LogEvent) isEvent()   {}
