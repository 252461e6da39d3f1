package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MessageSDP       MessageType = "sdp"
	MessageCandidate MessageType = "candidate"
)

var null = []byte("null")

// Message is the signaling envelope. Playground holds a session
// description for sdp messages and a candidate init (or null) otherwise.
type Message struct {
	Type       MessageType     `json:"type"`
	Playground json.RawMessage `json:"playground,omitempty"`
}

func NewSDPMessage(desc webrtc.SessionDescription) (Message, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageSDP, Playground: raw}, nil
}

func NewCandidateMessage(c webrtc.ICECandidateInit) (Message, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageCandidate, Playground: raw}, nil
}

func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	switch m.Type {
	case MessageSDP, MessageCandidate:
	case "":
		return Message{}, errors.New("message type missing")
	default:
		return Message{}, fmt.Errorf("unknown message type %q", m.Type)
	}
	return m, nil
}

func (m Message) empty() bool {
	p := bytes.TrimSpace(m.Playground)
	return len(p) == 0 || bytes.Equal(p, null)
}

// SessionDescription decodes the sdp playground.
func (m Message) SessionDescription() (webrtc.SessionDescription, error) {
	if m.Type != MessageSDP {
		return webrtc.SessionDescription{}, fmt.Errorf("message %q is not sdp", m.Type)
	}
	if m.empty() {
		return webrtc.SessionDescription{}, errors.New("sdp message without description")
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(m.Playground, &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode sdp: %w", err)
	}
	if desc.SDP == "" {
		return webrtc.SessionDescription{}, errors.New("sdp message with empty sdp")
	}
	return desc, nil
}

// Candidate decodes the candidate playground. A null playground is the
// end-of-candidates marker and yields nil.
func (m Message) Candidate() (*webrtc.ICECandidateInit, error) {
	if m.Type != MessageCandidate {
		return nil, fmt.Errorf("message %q is not candidate", m.Type)
	}
	if m.empty() {
		return nil, nil
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(m.Playground, &c); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	return &c, nil
}
