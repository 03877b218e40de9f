package twilio

import (
	"errors"
	"net/http/httptest"
	"testing"
)

const testToken = "auth-token-123"

func TestSignatureRoundTrip(t *testing.T) {
	v := NewValidator(testToken)
	url := "wss://gw.example.com/ws/media-stream"
	sig := v.Signature(url, nil)

	if !v.Validate(url, nil, sig) {
		t.Fatalf("signature must validate against itself")
	}
	if v.Validate(url, nil, sig+"x") {
		t.Fatalf("tampered signature must not validate")
	}
	if v.Validate("wss://gw.example.com/other", nil, sig) {
		t.Fatalf("signature must be bound to the url")
	}
}

func TestSignatureSortsParams(t *testing.T) {
	v := NewValidator(testToken)
	url := "https://gw.example.com/voice"
	a := v.Signature(url, map[string]string{"B": "2", "A": "1"})
	b := v.Signature(url, map[string]string{"A": "1", "B": "2"})
	if a != b {
		t.Fatalf("parameter order must not affect the signature")
	}
}

func TestGateHeaderSource(t *testing.T) {
	g := NewGate(testToken, SourceHeader, false)
	v := NewValidator(testToken)

	r := httptest.NewRequest("GET", "http://gw.example.com/ws/media-stream?From=%2B15550100", nil)
	// Arrived over ws://; the signed URL is always the secure variant.
	r.Header.Set(SignatureHeader, v.Signature("wss://gw.example.com/ws/media-stream?From=%2B15550100", nil))

	if err := g.Authorize(r); err != nil {
		t.Fatalf("valid header signature rejected: %v", err)
	}
}

func TestGateQuerySourceStripsSignatureParam(t *testing.T) {
	g := NewGate(testToken, SourceQuery, false)
	v := NewValidator(testToken)

	sig := v.Signature("wss://gw.example.com/ws/media-stream?CallSid=CA1", nil)
	r := httptest.NewRequest("GET", "http://gw.example.com/ws/media-stream?CallSid=CA1", nil)
	q := r.URL.Query()
	q.Set(SignatureHeader, sig)
	r.URL.RawQuery = q.Encode()

	if err := g.Authorize(r); err != nil {
		t.Fatalf("valid query signature rejected: %v", err)
	}
}

func TestGateMissingSignature(t *testing.T) {
	for _, src := range []SignatureSource{SourceHeader, SourceQuery} {
		g := NewGate(testToken, src, false)
		r := httptest.NewRequest("GET", "http://gw.example.com/ws/media-stream", nil)
		if err := g.Authorize(r); !errors.Is(err, ErrSignatureRejected) {
			t.Fatalf("source %s: expected ErrSignatureRejected, got %v", src, err)
		}
	}
}

func TestGateInvalidSignature(t *testing.T) {
	g := NewGate(testToken, SourceHeader, false)
	r := httptest.NewRequest("GET", "http://gw.example.com/ws/media-stream", nil)
	r.Header.Set(SignatureHeader, "bm90IGEgcmVhbCBzaWduYXR1cmU=")
	if err := g.Authorize(r); !errors.Is(err, ErrSignatureRejected) {
		t.Fatalf("expected ErrSignatureRejected, got %v", err)
	}
}

func TestGateBypass(t *testing.T) {
	g := NewGate(testToken, SourceHeader, true)
	r := httptest.NewRequest("GET", "http://gw.example.com/ws/media-stream", nil)
	if err := g.Authorize(r); err != nil {
		t.Fatalf("bypass must admit unsigned requests: %v", err)
	}
}
