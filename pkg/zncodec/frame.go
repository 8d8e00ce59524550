// Package zncodec implements the CODEC component: length-prefixed
// MessagePack framing for the peer wire protocol, bencode for tracker
// payloads, and canonical JSON for signed documents.
package zncodec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrFrameTooLarge guards against a peer claiming an unreasonable frame size.
var ErrFrameTooLarge = errors.New("zncodec: frame exceeds maximum size")

// MaxFrameSize bounds a single decoded frame (32 MiB is comfortably above the
// largest getFile chunk the site engine requests).
const MaxFrameSize = 32 << 20

// Request is a peer-to-peer RPC request frame.
type Request struct {
	Cmd    string         `msgpack:"cmd"`
	ReqID  uint32         `msgpack:"req_id"`
	Params map[string]any `msgpack:"params"`
}

// Response is a peer-to-peer RPC response frame: Body fields
// beyond Cmd/To are carried in Body and merged at encode time so handlers
// can return arbitrary result shapes without a fixed schema.
type Response struct {
	Cmd  string         `msgpack:"cmd"`
	To   uint32         `msgpack:"to"`
	Body map[string]any `msgpack:"-"`
}

// rawFrame is used to sniff which concrete type a decoded frame represents:
// a Response always carries cmd=="response"; everything else is a Request.
type rawFrame struct {
	Cmd string `msgpack:"cmd"`
}

// WriteRequest length-prefixes and writes a Request frame.
func WriteRequest(w io.Writer, req Request) error {
	return writeFrame(w, req)
}

// WriteResponse length-prefixes and writes a Response frame. Body fields are
// flattened alongside cmd/to so the wire shape matches exactly
// (a single map, not a nested "body" key).
func WriteResponse(w io.Writer, resp Response) error {
	flat := make(map[string]any, len(resp.Body)+2)
	for k, v := range resp.Body {
		flat[k] = v
	}
	flat["cmd"] = "response"
	flat["to"] = resp.To
	return writeFrame(w, flat)
}

func writeFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("zncodec: encode frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("zncodec: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("zncodec: write frame body: %w", err)
	}
	return nil
}

// Frame is the decoded result of ReadFrame: exactly one of Request/Response is set.
type Frame struct {
	Request  *Request
	Response *Response
}

// ReadFrame blocks until a complete length-prefixed frame arrives on r,
// decodes it, and classifies it as a Request or a Response.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, fmt.Errorf("zncodec: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("zncodec: read frame body: %w", err)
	}

	var sniff rawFrame
	if err := msgpack.Unmarshal(payload, &sniff); err != nil {
		return Frame{}, fmt.Errorf("zncodec: decode frame: %w", err)
	}
	if sniff.Cmd == "response" {
		var body map[string]any
		if err := msgpack.Unmarshal(payload, &body); err != nil {
			return Frame{}, fmt.Errorf("zncodec: decode response frame: %w", err)
		}
		to, _ := toUint32(body["to"])
		delete(body, "cmd")
		delete(body, "to")
		return Frame{Response: &Response{Cmd: "response", To: to, Body: body}}, nil
	}
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		return Frame{}, fmt.Errorf("zncodec: decode request frame: %w", err)
	}
	return Frame{Request: &req}, nil
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint64:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case int:
		return uint32(n), true
	case uint8:
		return uint32(n), true
	default:
		return 0, false
	}
}
