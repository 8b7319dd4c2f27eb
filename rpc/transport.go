// Package rpc implements the length-prefixed, sonic-encoded request/
// response transport the DHT node's KV surface is exposed over
//: one schema of typed message tags per service, a
// fixed wire header, and server dispatch that ties one message to one
// connection round-trip at a time.
package rpc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// protocolVersion is bumped if the frame header shape ever changes.
const protocolVersion = 1

// maxFrameSize bounds per-connection memory: no single message body may
// exceed this many bytes.
const maxFrameSize = 64 << 20

// Tag identifies a message's schema within a service's closed set of
// variants.
type Tag uint8

// frame is version + tag + 4-byte little-endian body length, followed
// by the sonic-encoded body.
const frameHeaderSize = 1 + 1 + 4

// writeFrame writes one length-prefixed message to w.
func writeFrame(w io.Writer, tag Tag, body []byte) error {
	if len(body) > maxFrameSize {
		return fmt.Errorf("rpc: frame body of %d bytes exceeds max %d", len(body), maxFrameSize)
	}
	var header [frameHeaderSize]byte
	header[0] = protocolVersion
	header[1] = byte(tag)
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("rpc: write frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("rpc: write frame body: %w", err)
		}
	}
	return nil
}

// readFrame reads one length-prefixed message from r.
func readFrame(r *bufio.Reader) (Tag, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if header[0] != protocolVersion {
		return 0, nil, fmt.Errorf("rpc: unsupported protocol version %d", header[0])
	}
	tag := Tag(header[1])
	n := binary.LittleEndian.Uint32(header[2:6])
	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("rpc: frame body of %d bytes exceeds max %d", n, maxFrameSize)
	}

	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("rpc: read frame body: %w", err)
		}
	}
	return tag, body, nil
}

// encode and decode are the sonic-backed body codec shared by client
// and server.
func encode(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
