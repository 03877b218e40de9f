// Package gateway exposes the WebSocket endpoints: the media-stream
// endpoint guarded by the Twilio handshake gate, and a diagnostic echo
// endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	ws "nhooyr.io/websocket"

	"ivr/gateway/internal/mediastream"
	"ivr/gateway/internal/registry"
	"ivr/gateway/internal/twilio"
)

// Fixed allow-list of inbound headers captured onto a session.
var headerAllowList = []string{
	"Host",
	"User-Agent",
	"X-Forwarded-For",
	"X-Twilio-Signature",
}

type Server struct {
	Gate *twilio.Gate
	Reg  *registry.Registry
}

func NewServer(gate *twilio.Gate, reg *registry.Registry) *Server {
	return &Server{Gate: gate, Reg: reg}
}

// wsTransport adapts a websocket connection to the engine and registry
// interfaces. Clean closures surface as ErrClientGone so the engine can
// tell disconnects from faults.
type wsTransport struct {
	conn *ws.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		switch ws.CloseStatus(err) {
		case ws.StatusNormalClosure, ws.StatusGoingAway:
			return nil, mediastream.ErrClientGone
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(ws.StatusNormalClosure, reason)
}

// HandleMediaStream authorizes the handshake, registers a session and
// hands the connection to the protocol engine.
func (s *Server) HandleMediaStream(w http.ResponseWriter, r *http.Request) {
	clientHost, clientPort := clientAddr(r)
	authErr := s.Gate.Authorize(r)

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("client_host", clientHost).Msg("websocket accept failed")
		return
	}

	if authErr != nil {
		log.Error().
			Err(authErr).
			Str("client_host", clientHost).
			Msg("rejecting media-stream connection")
		_ = c.Close(ws.StatusPolicyViolation, "signature validation failed")
		return
	}

	transport := &wsTransport{conn: c}
	id, err := s.Reg.Connect(transport, clientHost, clientPort, allowedHeaders(r), queryParams(r))
	if err != nil {
		if errors.Is(err, registry.ErrRegistryClosed) {
			log.Warn().Str("client_host", clientHost).Msg("refusing connection during shutdown")
			_ = c.Close(ws.StatusGoingAway, "server shutting down")
			return
		}
		log.Error().Err(err).Msg("session registration failed")
		_ = c.Close(ws.StatusInternalError, "registration failed")
		return
	}

	log.Info().
		Str("session_id", id).
		Str("client_host", clientHost).
		Int("client_port", clientPort).
		Msg("media stream connection established")

	engine := mediastream.NewEngine(s.Reg, id, transport)
	engine.Run(r.Context())
}

// HandleEcho is the diagnostic endpoint: every text frame is echoed back
// with a template prefix.
func (s *Server) HandleEcho(w http.ResponseWriter, r *http.Request) {
	clientHost, clientPort := clientAddr(r)

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("client_host", clientHost).Msg("websocket accept failed")
		return
	}
	log.Info().
		Str("client_host", clientHost).
		Int("client_port", clientPort).
		Msg("echo connection established")

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			log.Info().
				Str("client_host", clientHost).
				Msg("echo client disconnected")
			break
		}
		if typ != ws.MessageText {
			continue
		}
		resp := fmt.Sprintf("Message text was: %s", data)
		if err := c.Write(ctx, ws.MessageText, []byte(resp)); err != nil {
			log.Warn().Err(err).Str("client_host", clientHost).Msg("echo write failed")
			break
		}
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
}

func clientAddr(r *http.Request) (string, int) {
	host, portStr, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "unknown", 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func allowedHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(headerAllowList))
	for _, name := range headerAllowList {
		v := r.Header.Get(name)
		if name == "Host" && v == "" {
			v = r.Host
		}
		if v != "" {
			out[strings.ToLower(name)] = v
		}
	}
	return out
}

func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}
