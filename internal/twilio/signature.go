// Package twilio implements Twilio request signing and the handshake
// policy that gates inbound media-stream connections.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
)

// Validator computes and checks Twilio request signatures: the
// base64-encoded HMAC-SHA1 of the full request URL concatenated with the
// sorted POST parameter names and values, keyed by the account auth token.
type Validator struct {
	authToken []byte
}

func NewValidator(authToken string) *Validator {
	return &Validator{authToken: []byte(authToken)}
}

// Signature returns the expected signature for a URL and parameter set.
func (v *Validator) Signature(url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, v.authToken)
	mac.Write([]byte(url))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(params[k]))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Validate reports whether signature matches url and params, in constant
// time with respect to the signature bytes.
func (v *Validator) Validate(url string, params map[string]string, signature string) bool {
	want := v.Signature(url, params)
	return hmac.Equal([]byte(want), []byte(signature))
}
