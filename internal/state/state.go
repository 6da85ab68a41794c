// Package state encodes the post-login destination into the OAuth state parameter.
//
// The state value carries only a return URL for UX continuation. It is never
// used for authorization decisions, so a malformed value is recovered by
// falling back to the default destination rather than failing the flow.
package state

import (
	"encoding/base64"
	"encoding/json"
)

// DefaultReturnURL is used when no usable return URL is carried in state.
const DefaultReturnURL = "/"

// State is the value round-tripped through the provider during login.
type State struct {
	ReturnURL string `json:"returnUrl"`
}

// Encode serializes a State into an ASCII-safe opaque string.
func Encode(s State) string {
	b, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode is the inverse of Encode. It is total for any string Encode
// produced; adversarial input fails with an error.
func Decode(raw string) (State, error) {
	var s State
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	return s, nil
}

// ReturnURLOrDefault decodes raw and returns its return URL, or
// DefaultReturnURL when raw is absent, malformed, or carries no value.
func ReturnURLOrDefault(raw string) string {
	if raw == "" {
		return DefaultReturnURL
	}
	s, err := Decode(raw)
	if err != nil || s.ReturnURL == "" {
		return DefaultReturnURL
	}
	return s.ReturnURL
}
