package framing

import (
	"bufio"
	"bytes"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		[]byte(`{"type":1,"host":"h"}`),
		bytes.Repeat([]byte("a"), 70000), // forces a multi-fragment chunk body to exercise io.ReadFull
	}
	for _, p := range payloads {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, p))

		got, err := Decode(bufio.NewReader(&buf))
		require.NoError(t, err)
		if len(p) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, p, got)
		}
	}
}

func TestRoundTripLarge(t *testing.T) {
	p := make([]byte, 1<<20)
	_, err := rand.Read(p)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	got, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeSuccessiveFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte("first")))
	require.NoError(t, Encode(&buf, []byte("second")))

	br := bufio.NewReader(&buf)
	got, err := Decode(br)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	got, err = Decode(br)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"missing leading newline": "#5\nhello\n##\n",
		"missing hash":            "\n5\nhello\n##\n",
		"non-digit length":        "\n#5x\nhello\n##\n",
		"zero length":             "\n#0\n\n##\n",
		"length too long":         "\n#12345678901\nhello\n##\n",
		"truncated body":          "\n#5\nhel",
		"missing terminator":      "\n#5\nhello\n#x\n",
	}
	for name, wire := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bufio.NewReader(bytes.NewBufferString(wire)))
			require.Error(t, err)
			var fe *FramingError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestDecodeTimeoutAtBoundaryIsNetError(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	require.NoError(t, server.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := Decode(bufio.NewReader(server))
	require.Error(t, err)

	var ne net.Error
	require.True(t, errors.As(err, &ne), "a boundary timeout must be reported as a net.Error, not wrapped in *FramingError")
	assert.True(t, ne.Timeout())

	var fe *FramingError
	assert.False(t, errors.As(err, &fe), "a boundary timeout must not also satisfy *FramingError")
}

func TestDecodeTimeoutMidFrameIsFramingError(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = client.Write([]byte("\n#5\nhel")) // chunk header plus a short, incomplete body
	}()

	br := bufio.NewReader(server)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(50*time.Millisecond)))

	_, err := Decode(br)
	require.Error(t, err)

	var fe *FramingError
	assert.True(t, errors.As(err, &fe), "a timeout after a frame has started must stay a *FramingError")
}

func TestDecodeFuzzNeverPanics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte("a well formed payload")))
	valid := buf.Bytes()

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		corrupt := append([]byte(nil), valid...)

		switch rng.Intn(2) {
		case 0:
			// Truncate at a random point.
			n := rng.Intn(len(corrupt) + 1)
			corrupt = corrupt[:n]
		case 1:
			// Flip a random bit.
			if len(corrupt) > 0 {
				idx := rng.Intn(len(corrupt))
				corrupt[idx] ^= byte(1 << uint(rng.Intn(8)))
			}
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Decode panicked on corrupted input %q: %v", corrupt, r)
				}
			}()
			got, err := Decode(bufio.NewReader(bytes.NewReader(corrupt)))
			if err == nil {
				// A mutation can coincidentally still decode to a valid
				// (possibly different) payload; that's fine, only a panic
				// or a non-FramingError failure is a bug.
				_ = got
				return
			}
			var fe *FramingError
			assert.ErrorAs(t, err, &fe)
		}()
	}
}
