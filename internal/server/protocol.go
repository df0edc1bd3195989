package server

import (
	"fmt"

	"github.com/tightfive/stagetrack/internal/insights"
	"github.com/tightfive/stagetrack/internal/script"
)

// Client message types. The first message on a stage socket must be a
// setlist; everything after it is a control message or a binary PCM
// frame.
const (
	msgSetlist    = "setlist"
	msgStart      = "start"
	msgPause      = "pause"
	msgResume     = "resume"
	msgStop       = "stop"
	msgJump       = "jump"
	msgJumpLine   = "jump_line"
	msgNext       = "next"
	msgPrevious   = "previous"
	msgTranscript = "transcript"
	msgEnd        = "end"
)

// clientMessage is one JSON control message from the stage client. Which
// fields are meaningful depends on Type.
type clientMessage struct {
	Type string `json:"type"`

	// Setlist upload.
	Title      string        `json:"title,omitempty"`
	SampleRate int           `json:"sample_rate,omitempty"`
	Channels   int           `json:"channels,omitempty"`
	Lines      []setlistLine `json:"lines,omitempty"`

	// Navigation.
	BlockID string `json:"block_id,omitempty"`
	Line    int    `json:"line,omitempty"`

	// Client-side recognition.
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
}

// setlistLine is one script line as uploaded by the client.
type setlistLine struct {
	ID           string `json:"id,omitempty"`
	Text         string `json:"text"`
	AnchorPhrase string `json:"anchor_phrase,omitempty"`
	ExitPhrase   string `json:"exit_phrase,omitempty"`
}

// buildScript converts an uploaded setlist into the immutable script the
// session tracks against.
func buildScript(msg clientMessage) (*script.Script, error) {
	if msg.Type != msgSetlist {
		return nil, fmt.Errorf("first message must be %q, got %q", msgSetlist, msg.Type)
	}
	lines := make([]script.Line, len(msg.Lines))
	for i, l := range msg.Lines {
		lines[i] = script.Line{
			ID:           l.ID,
			Text:         l.Text,
			AnchorPhrase: l.AnchorPhrase,
			ExitPhrase:   l.ExitPhrase,
		}
	}
	return script.New(msg.Title, lines)
}

// errorMessage tells the client a request failed without tearing the
// socket down.
type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newErrorMessage(err error) errorMessage {
	return errorMessage{Type: "error", Error: err.Error()}
}

// reportMessage delivers the post-show report at session end.
type reportMessage struct {
	Type   string          `json:"type"`
	Report insights.Report `json:"report"`
}

func newReportMessage(r insights.Report) reportMessage {
	return reportMessage{Type: "report", Report: r}
}
