package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	urls := []string{
		"/",
		"/library",
		"/courses/42?tab=quiz&page=3",
		"/a b/c%20d",
		"/path/with/ünïcode",
		"",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			decoded, err := Decode(Encode(State{ReturnURL: u}))
			require.NoError(t, err)
			assert.Equal(t, u, decoded.ReturnURL)
		})
	}
}

func TestEncode_ASCIISafe(t *testing.T) {
	encoded := Encode(State{ReturnURL: "/library?q=ünïcode&x=1"})
	for _, r := range encoded {
		assert.Less(t, r, rune(128))
	}
	// base64url never needs query escaping
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("not%%%base64")
	assert.Error(t, err)

	_, err = Decode("bm90LWpzb24") // base64("not-json")
	assert.Error(t, err)
}

func TestReturnURLOrDefault(t *testing.T) {
	t.Run("valid state", func(t *testing.T) {
		raw := Encode(State{ReturnURL: "/library"})
		assert.Equal(t, "/library", ReturnURLOrDefault(raw))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, DefaultReturnURL, ReturnURLOrDefault(""))
	})

	t.Run("malformed input", func(t *testing.T) {
		assert.Equal(t, DefaultReturnURL, ReturnURLOrDefault("garbage!!!"))
	})

	t.Run("empty return url", func(t *testing.T) {
		raw := Encode(State{})
		assert.Equal(t, DefaultReturnURL, ReturnURLOrDefault(raw))
	})
}
