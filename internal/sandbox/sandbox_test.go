package sandbox_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/sandbox"
)

func writeFrame(buf *bytes.Buffer, magic string, payload []byte) {
	buf.WriteString(magic)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
}

func TestHostRunDecodesResultFrame(t *testing.T) {
	var events bytes.Buffer
	writeFrame(&events, "\x00RSLT\x00", []byte(`{"ok":true}`))

	h := &sandbox.Host{Events: &events, Responses: &bytes.Buffer{}, Fuel: sandbox.NewFuel(1000)}
	result, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, result)
}

func TestHostRunDecodesUndefinedResult(t *testing.T) {
	var events bytes.Buffer
	writeFrame(&events, "\x00RSLT\x00", []byte("undefined"))

	h := &sandbox.Host{Events: &events, Responses: &bytes.Buffer{}}
	result, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestHostRunSurfacesErrorFrame(t *testing.T) {
	var events bytes.Buffer
	writeFrame(&events, "\x00ERRR\x00", []byte("guest panicked"))

	h := &sandbox.Host{Events: &events, Responses: &bytes.Buffer{}}
	_, err := h.Run(context.Background())
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindProtocol))
	require.Contains(t, err.Error(), "guest panicked")
}

func TestHostRunAnswersHostCall(t *testing.T) {
	var events, responses bytes.Buffer
	writeFrame(&events, "\x00HOST\x00", []byte(`{"method":"GET","path":"/entries/e1"}`))
	writeFrame(&events, "\x00RSLT\x00", []byte(`"done"`))

	var seen sandbox.HostCall
	h := &sandbox.Host{
		Events:    &events,
		Responses: &responses,
		OnHost: func(_ context.Context, call sandbox.HostCall) (any, error) {
			seen = call
			return map[string]any{"title": "hello"}, nil
		},
	}
	result, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "done", result)
	require.Equal(t, "GET", seen.Method)
	require.Equal(t, "/entries/e1", seen.Path)
	require.True(t, responses.Len() > 0)
}

// TestHostRunReportsFuelExhaustion exercises the fuel budget: a
// guest that consumes more than its fuel budget and terminates at EOF
// without a result frame surfaces a ResourceExhausted error.
func TestHostRunReportsFuelExhaustion(t *testing.T) {
	fuel := sandbox.NewFuel(10)
	require.True(t, fuel.Consume(5))
	require.False(t, fuel.Consume(10))
	require.True(t, fuel.Trapped())

	var events bytes.Buffer // guest stream closed with no terminal frame
	h := &sandbox.Host{Events: &events, Responses: &bytes.Buffer{}, Fuel: fuel}
	_, err := h.Run(context.Background())
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindResourceExhausted))
	require.Contains(t, err.Error(), "fuel exhausted")
}

func TestHostRunWithoutFuelReportsProtocolError(t *testing.T) {
	var events bytes.Buffer
	h := &sandbox.Host{Events: &events, Responses: &bytes.Buffer{}}
	_, err := h.Run(context.Background())
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindProtocol))
}
