// Package mediastream implements the Twilio media-stream wire protocol:
// the typed message schema and the per-connection engine that drives it.
package mediastream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedMessage marks frames that fail schema validation. Such
// frames are dropped without touching session state.
var ErrMalformedMessage = errors.New("malformed media-stream message")

// Event tags of the wire protocol.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// Message is the closed set of protocol frames, discriminated by their
// event tag.
type Message interface {
	Event() string
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Connected is the informational first frame of a stream.
type Connected struct {
	Protocol string
	Version  string
}

func (Connected) Event() string { return EventConnected }

// Start carries the call-identifying metadata for the stream.
type Start struct {
	StreamSid        string
	AccountSid       string
	CallSid          string
	Tracks           []string
	MediaFormat      MediaFormat
	CustomParameters map[string]any
}

func (Start) Event() string { return EventStart }

// Media is one chunk of encoded audio.
type Media struct {
	StreamSid string
	Track     string // "inbound" | "outbound"
	Chunk     int
	Timestamp int
	Payload   string
}

func (Media) Event() string { return EventMedia }

// Stop is the terminal frame of a stream.
type Stop struct {
	StreamSid  string
	AccountSid string
	CallSid    string
}

func (Stop) Event() string { return EventStop }

// flexInt accepts a JSON number or a numeric string; Twilio sends both.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not a numeric string: %q", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// Raw frame shapes as they appear on the wire.
type startFrame struct {
	StreamSid string `json:"streamSid"`
	Start     struct {
		AccountSid       string         `json:"accountSid"`
		StreamSid        string         `json:"streamSid"`
		CallSid          string         `json:"callSid"`
		Tracks           []string       `json:"tracks"`
		MediaFormat      MediaFormat    `json:"mediaFormat"`
		CustomParameters map[string]any `json:"customParameters"`
	} `json:"start"`
}

type mediaFrame struct {
	StreamSid string `json:"streamSid"`
	Media     struct {
		Track     string   `json:"track"`
		Chunk     *flexInt `json:"chunk"`
		Timestamp *flexInt `json:"timestamp"`
		Payload   string   `json:"payload"`
	} `json:"media"`
}

type stopFrame struct {
	StreamSid string `json:"streamSid"`
	Stop      struct {
		AccountSid string `json:"accountSid"`
		CallSid    string `json:"callSid"`
	} `json:"stop"`
}

// Parse validates a raw frame and returns the corresponding variant, or
// ErrMalformedMessage. A failed parse must leave no trace on the session.
func Parse(data []byte) (Message, error) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: bad json: %v", ErrMalformedMessage, err)
	}

	switch env.Event {
	case EventConnected:
		var f struct {
			Protocol string `json:"protocol"`
			Version  string `json:"version"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: connected: %v", ErrMalformedMessage, err)
		}
		if f.Protocol == "" || f.Version == "" {
			return nil, fmt.Errorf("%w: connected: missing protocol or version", ErrMalformedMessage)
		}
		return &Connected{Protocol: f.Protocol, Version: f.Version}, nil

	case EventStart:
		var f startFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: start: %v", ErrMalformedMessage, err)
		}
		if f.StreamSid == "" || f.Start.AccountSid == "" || f.Start.StreamSid == "" || f.Start.CallSid == "" {
			return nil, fmt.Errorf("%w: start: missing sid fields", ErrMalformedMessage)
		}
		if f.Start.Tracks == nil {
			return nil, fmt.Errorf("%w: start: missing tracks", ErrMalformedMessage)
		}
		if f.Start.MediaFormat.Encoding == "" || f.Start.MediaFormat.SampleRate <= 0 || f.Start.MediaFormat.Channels <= 0 {
			return nil, fmt.Errorf("%w: start: invalid mediaFormat", ErrMalformedMessage)
		}
		params := f.Start.CustomParameters
		if params == nil {
			params = map[string]any{}
		}
		return &Start{
			StreamSid:        f.Start.StreamSid,
			AccountSid:       f.Start.AccountSid,
			CallSid:          f.Start.CallSid,
			Tracks:           f.Start.Tracks,
			MediaFormat:      f.Start.MediaFormat,
			CustomParameters: params,
		}, nil

	case EventMedia:
		var f mediaFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: media: %v", ErrMalformedMessage, err)
		}
		if f.StreamSid == "" {
			return nil, fmt.Errorf("%w: media: missing streamSid", ErrMalformedMessage)
		}
		if f.Media.Track != "inbound" && f.Media.Track != "outbound" {
			return nil, fmt.Errorf("%w: media: invalid track %q", ErrMalformedMessage, f.Media.Track)
		}
		if f.Media.Payload == "" {
			return nil, fmt.Errorf("%w: media: missing payload", ErrMalformedMessage)
		}
		if f.Media.Chunk == nil || f.Media.Timestamp == nil {
			return nil, fmt.Errorf("%w: media: missing chunk or timestamp", ErrMalformedMessage)
		}
		return &Media{
			StreamSid: f.StreamSid,
			Track:     f.Media.Track,
			Chunk:     int(*f.Media.Chunk),
			Timestamp: int(*f.Media.Timestamp),
			Payload:   f.Media.Payload,
		}, nil

	case EventStop:
		var f stopFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: stop: %v", ErrMalformedMessage, err)
		}
		if f.StreamSid == "" || f.Stop.AccountSid == "" || f.Stop.CallSid == "" {
			return nil, fmt.Errorf("%w: stop: missing sid fields", ErrMalformedMessage)
		}
		return &Stop{
			StreamSid:  f.StreamSid,
			AccountSid: f.Stop.AccountSid,
			CallSid:    f.Stop.CallSid,
		}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event tag", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedMessage, env.Event)
	}
}
