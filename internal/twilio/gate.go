package twilio

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

// SignatureHeader is the header (and query parameter) Twilio uses to
// carry the request signature.
const SignatureHeader = "X-Twilio-Signature"

// ErrSignatureRejected is returned when the signature is missing or does
// not verify. The caller closes the connection with a policy-violation
// status.
var ErrSignatureRejected = errors.New("twilio signature rejected")

// SignatureSource selects where the gate reads the signature from.
type SignatureSource string

const (
	SourceHeader SignatureSource = "header"
	SourceQuery  SignatureSource = "query"
)

// Gate decides whether an inbound connection attempt may proceed to
// session registration. It is stateless and safe for concurrent use.
type Gate struct {
	bypass    bool
	source    SignatureSource
	validator *Validator
}

// NewGate builds a gate. bypass must only be true in a development
// configuration; it admits every connection unconditionally.
func NewGate(authToken string, source SignatureSource, bypass bool) *Gate {
	if source != SourceQuery {
		source = SourceHeader
	}
	return &Gate{bypass: bypass, source: source, validator: NewValidator(authToken)}
}

// Authorize verifies the handshake request. It returns nil to admit the
// connection or ErrSignatureRejected.
func (g *Gate) Authorize(r *http.Request) error {
	if g.bypass {
		log.Debug().Msg("bypassing twilio signature validation in development environment")
		return nil
	}

	var signature string
	var canonical string

	switch g.source {
	case SourceQuery:
		q := r.URL.Query()
		signature = q.Get(SignatureHeader)
		if signature == "" {
			return fmt.Errorf("%w: signature missing from query parameters", ErrSignatureRejected)
		}
		// Twilio signs the URL without the signature parameter itself.
		q.Del(SignatureHeader)
		canonical = canonicalURL(r, q.Encode())
	default:
		signature = r.Header.Get(SignatureHeader)
		if signature == "" {
			return fmt.Errorf("%w: signature missing from headers", ErrSignatureRejected)
		}
		canonical = canonicalURL(r, r.URL.RawQuery)
	}

	log.Debug().Str("url", canonical).Msg("validating twilio websocket signature")

	if !g.validator.Validate(canonical, nil, signature) {
		return fmt.Errorf("%w: signature validation failed", ErrSignatureRejected)
	}
	return nil
}

// canonicalURL rebuilds the pre-signature request URL. Twilio requires
// the secure scheme regardless of how the connection arrived.
func canonicalURL(r *http.Request, rawQuery string) string {
	u := url.URL{
		Scheme:   "wss",
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: rawQuery,
	}
	return u.String()
}
