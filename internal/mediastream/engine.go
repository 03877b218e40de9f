package mediastream

import (
	"context"
	"errors"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

// ErrClientGone signals a clean client disconnect from Conn.Read.
// It is a normal termination, not a transport fault.
var ErrClientGone = errors.New("client disconnected")

// Engine states.
const (
	StateAwaitingMessages = "awaiting_messages"
	StateActive           = "active"
	StateTerminated       = "terminated"
)

const (
	evActivate  = "activate"
	evTerminate = "terminate"
)

// Metadata keys written on a start event, read by operational tooling.
const (
	MetaStreamSid  = "stream_sid"
	MetaCallSid    = "call_sid"
	MetaAccountSid = "account_sid"
)

// Conn is the transport as the engine sees it. Read blocks for the next
// frame and returns ErrClientGone on a clean disconnect.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close(reason string) error
}

// Registry is the slice of the session registry the engine needs.
type Registry interface {
	UpdateMetadata(id string, metadata map[string]string)
	Disconnect(id string)
}

// Engine drives the protocol state machine for one session. It holds the
// only transient reference to the session while the connection lives.
type Engine struct {
	reg       Registry
	sessionID string
	conn      Conn

	machine *fsm.FSM
	cleanup sync.Once

	messageCount int
	mediaFrames  int
	mediaLogged  bool
}

func NewEngine(reg Registry, sessionID string, conn Conn) *Engine {
	e := &Engine{reg: reg, sessionID: sessionID, conn: conn}
	e.machine = fsm.NewFSM(
		StateAwaitingMessages,
		fsm.Events{
			{Name: evActivate, Src: []string{StateAwaitingMessages}, Dst: StateActive},
			{Name: evTerminate, Src: []string{StateAwaitingMessages, StateActive}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, ev *fsm.Event) {
				metricStateTransitions.WithLabelValues(ev.Src, ev.Dst).Inc()
				log.Debug().
					Str("session_id", sessionID).
					Str("from", ev.Src).
					Str("to", ev.Dst).
					Msg("stream state transition")
			},
		},
	)
	return e
}

// State returns the current protocol state.
func (e *Engine) State() string { return e.machine.Current() }

// MessageCount returns the number of successfully parsed messages.
func (e *Engine) MessageCount() int { return e.messageCount }

// Run consumes frames until the stream terminates: a stop event, a client
// disconnect, a transport fault, or cancellation. Cleanup always runs
// exactly once regardless of the exit path, and the final message count
// is returned.
func (e *Engine) Run(ctx context.Context) int {
	defer e.terminate("session ended")

	for {
		data, err := e.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrClientGone) || ctx.Err() != nil {
				log.Info().
					Str("session_id", e.sessionID).
					Int("message_count", e.messageCount).
					Msg("media stream client disconnected")
			} else {
				log.Error().
					Err(err).
					Str("session_id", e.sessionID).
					Int("message_count", e.messageCount).
					Msg("media stream transport fault")
			}
			return e.messageCount
		}

		msg, err := Parse(data)
		if err != nil {
			// Dropped frames never mutate session state or counters.
			metricMalformedMessages.Inc()
			log.Warn().
				Err(err).
				Str("session_id", e.sessionID).
				Msg("dropping malformed media-stream message")
			continue
		}

		if e.machine.Current() == StateAwaitingMessages {
			_ = e.machine.Event(ctx, evActivate)
		}
		e.messageCount++
		metricMessages.WithLabelValues(msg.Event()).Inc()

		if stop := e.dispatch(msg); stop {
			return e.messageCount
		}
	}
}

// dispatch handles one validated message and reports whether the stream
// is done.
func (e *Engine) dispatch(msg Message) bool {
	switch m := msg.(type) {
	case *Connected:
		log.Info().
			Str("session_id", e.sessionID).
			Str("protocol", m.Protocol).
			Str("version", m.Version).
			Msg("media stream connected")

	case *Start:
		e.reg.UpdateMetadata(e.sessionID, map[string]string{
			MetaStreamSid:  m.StreamSid,
			MetaCallSid:    m.CallSid,
			MetaAccountSid: m.AccountSid,
		})
		log.Info().
			Str("session_id", e.sessionID).
			Str("stream_sid", m.StreamSid).
			Str("call_sid", m.CallSid).
			Str("account_sid", m.AccountSid).
			Strs("tracks", m.Tracks).
			Str("encoding", m.MediaFormat.Encoding).
			Msg("media stream started")

	case *Media:
		e.mediaFrames++
		metricMediaFrames.Inc()
		// High-frequency traffic collapses into one log line plus a
		// running count.
		if !e.mediaLogged {
			e.mediaLogged = true
			log.Info().
				Str("session_id", e.sessionID).
				Str("track", m.Track).
				Int("chunk", m.Chunk).
				Int("timestamp", m.Timestamp).
				Msg("first media frame received")
		}

	case *Stop:
		log.Info().
			Str("session_id", e.sessionID).
			Str("call_sid", m.CallSid).
			Int("message_count", e.messageCount).
			Msg("media stream stopped")
		return true
	}
	return false
}

// terminate runs the single cleanup path shared by every exit: close the
// transport, retire the session, report the totals. Safe to call more
// than once.
func (e *Engine) terminate(reason string) {
	e.cleanup.Do(func() {
		_ = e.machine.Event(context.Background(), evTerminate)
		_ = e.conn.Close(reason)
		e.reg.Disconnect(e.sessionID)
		log.Info().
			Str("session_id", e.sessionID).
			Int("message_count", e.messageCount).
			Int("media_frames", e.mediaFrames).
			Msg("media stream session cleaned up")
	})
}
