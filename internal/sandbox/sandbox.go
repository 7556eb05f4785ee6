// Package sandbox implements the host side of the guest Wasm protocol:
// length-prefixed framing over three
// unidirectional byte streams, synchronous host-call RPCs, and fuel
// accounting. The guest runtime itself (the actual Wasm execution engine)
// is an external collaborator; this package only speaks the wire
// protocol a real guest-running host would drive.
package sandbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// Frame magics, each exactly 6 bytes.
const (
	magicHost = "\x00HOST\x00"
	magicRslt = "\x00RSLT\x00"
	magicErrr = "\x00ERRR\x00"
)

// HostCall is one guest->host RPC parsed from a HOST frame.
type HostCall struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// HostCallFunc answers one HostCall, returning a value to be JSON-encoded
// back to the guest, or an error to surface as a JSON error payload.
type HostCallFunc func(ctx context.Context, call HostCall) (any, error)

// Fuel tracks a guest's consumption budget. A real Wasm runtime decrements
// it as instructions execute; this host only needs to know whether the
// budget has been exhausted when the guest's output stream hits EOF.
type Fuel struct {
	budget  uint64
	spent   atomic.Uint64
	trapped atomic.Bool
}

// NewFuel creates a budget of n units.
func NewFuel(n uint64) *Fuel { return &Fuel{budget: n} }

// Consume records n units spent, trapping (and reporting false) once the
// budget is exceeded.
func (f *Fuel) Consume(n uint64) bool {
	if f.trapped.Load() {
		return false
	}
	if f.spent.Add(n) > f.budget {
		f.trapped.Store(true)
		return false
	}
	return true
}

// Trapped reports whether the budget has been exhausted.
func (f *Fuel) Trapped() bool { return f.trapped.Load() }

// Host drives one guest session: it reads framed events off Events (the
// guest->host stream carrying HOST/RSLT/ERRR frames), answers HOST frames
// by writing length-prefixed JSON to Responses (the host->guest response
// stream), and returns the guest's final result once a RSLT or ERRR frame
// arrives.
type Host struct {
	Events    io.Reader
	Responses io.Writer
	Fuel      *Fuel
	OnHost    HostCallFunc
}

// WriteCode delivers source to the guest's code-input stream as
// <u32 BE length><UTF-8 source>. Call once per guest
// session before Run.
func WriteCode(w io.Writer, source string) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(source)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return ieerr.Transport(err, "write code length")
	}
	if _, err := io.WriteString(w, source); err != nil {
		return ieerr.Transport(err, "write code body")
	}
	return nil
}

// Run reads frames until a terminal frame (RSLT/ERRR) or EOF arrives,
// answering any HOST frames synchronously along the way. It returns the
// guest's decoded result, or an error. Fuel exhaustion at EOF is reported
// as an error whose message contains "fuel".
func (h *Host) Run(ctx context.Context) (any, error) {
	for {
		magic, err := readMagic(h.Events)
		if err != nil {
			if err == io.EOF {
				if h.Fuel != nil && h.Fuel.Trapped() {
					return nil, ieerr.ResourceExhausted("guest terminated: fuel exhausted")
				}
				return nil, ieerr.Protocol("guest terminated without a result or error frame")
			}
			return nil, ieerr.Protocol("read frame magic: %v", err)
		}

		payload, err := readFramePayload(h.Events)
		if err != nil {
			return nil, ieerr.Protocol("read frame payload: %v", err)
		}

		switch magic {
		case magicHost:
			if err := h.answerHostCall(ctx, payload); err != nil {
				return nil, err
			}
		case magicRslt:
			return decodeResult(payload)
		case magicErrr:
			return nil, ieerr.New(ieerr.KindProtocol, "guest error: %s", string(payload))
		default:
			return nil, ieerr.Protocol("unknown frame magic %q", magic)
		}
	}
}

func (h *Host) answerHostCall(ctx context.Context, payload []byte) error {
	var call HostCall
	if err := json.Unmarshal(payload, &call); err != nil {
		return ieerr.Protocol("malformed host-call frame: %v", err)
	}

	var resp struct {
		Result any    `json:"result,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	if h.OnHost == nil {
		resp.Error = fmt.Sprintf("no host-call handler registered for %s %s", call.Method, call.Path)
	} else if result, err := h.OnHost(ctx, call); err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = result
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return ieerr.Protocol("encode host-call response: %v", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(out)))
	if _, err := h.Responses.Write(lenBuf[:]); err != nil {
		return ieerr.Transport(err, "write host-call response length")
	}
	if _, err := h.Responses.Write(out); err != nil {
		return ieerr.Transport(err, "write host-call response body")
	}
	return nil
}

func decodeResult(payload []byte) (any, error) {
	if string(payload) == "undefined" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, ieerr.Protocol("malformed result frame: %v", err)
	}
	return v, nil
}

func readMagic(r io.Reader) (string, error) {
	buf := make([]byte, 6)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return "", io.EOF
		}
		return "", err
	}
	return string(buf), nil
}

func readFramePayload(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
