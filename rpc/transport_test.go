package rpc

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestServerHandleConnRoundTrip(t *testing.T) {
	server := NewServer(nil)
	server.Handle(TagGet, func(_ context.Context, body []byte) (Tag, []byte, error) {
		var req GetRequest
		if err := decode(body, &req); err != nil {
			return 0, nil, err
		}
		resp := GetResponse{Value: []byte("value-for-" + req.Key), Found: true}
		out, err := encode(resp)
		return TagGet, out, err
	})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go server.handleConn(serverConn)

	reqBody, err := encode(GetRequest{Table: "t", Key: "k"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := writeFrame(clientConn, TagGet, reqBody); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	r := bufio.NewReader(clientConn)
	tag, body, err := readFrame(r)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if tag != TagGet {
		t.Fatalf("expected tag %d, got %d", TagGet, tag)
	}

	var resp GetResponse
	if err := decode(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(resp.Value) != "value-for-k" || !resp.Found {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServerUnknownTagReturnsError(t *testing.T) {
	server := NewServer(nil)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go server.handleConn(serverConn)

	if err := writeFrame(clientConn, Tag(200), nil); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	r := bufio.NewReader(clientConn)
	tag, body, err := readFrame(r)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if tag != TagError {
		t.Fatalf("expected TagError, got %d", tag)
	}
	var e ErrorResponse
	if err := decode(body, &e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if e.Message == "" {
		t.Fatalf("expected a non-empty error message")
	}
}

func TestClientCallRoundTripOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	server := NewServer(nil)
	server.Handle(TagSet, func(_ context.Context, body []byte) (Tag, []byte, error) {
		var req SetRequest
		if err := decode(body, &req); err != nil {
			return 0, nil, err
		}
		out, err := encode(SetResponse{})
		return TagSet, out, err
	})
	go server.Serve(ln)

	client := NewClient(ln.Addr().String())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp SetResponse
	if err := client.Call(ctx, TagSet, SetRequest{Table: "t", Key: "k", Value: []byte("v")}, &resp); err != nil {
		t.Fatalf("call: %v", err)
	}
}
