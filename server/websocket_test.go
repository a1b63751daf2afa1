package server

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestComputeAcceptKey(t *testing.T) {
	got := computeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	if got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("computeAcceptKey = %q", got)
	}
}

func maskedFrame(opcode byte, payload []byte) []byte {
	mask := [4]byte{0x11, 0x22, 0x33, 0x44}
	var buf bytes.Buffer
	buf.WriteByte(0x80 | opcode)
	if len(payload) < 126 {
		buf.WriteByte(0x80 | byte(len(payload)))
	} else {
		buf.WriteByte(0x80 | 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(len(payload)))
		buf.Write(ext[:])
	}
	buf.Write(mask[:])
	for i, b := range payload {
		buf.WriteByte(b ^ mask[i%4])
	}
	return buf.Bytes()
}

func TestReadFrameDecodesMaskedText(t *testing.T) {
	raw := maskedFrame(opText, []byte("Hello"))
	frame, err := readFrame(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !frame.fin || frame.opcode != opText {
		t.Fatalf("unexpected frame header: %+v", frame)
	}
	if string(frame.payload) != "Hello" {
		t.Fatalf("unmasked payload = %q", frame.payload)
	}
}

func TestReadFrameExtendedLength(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 300)
	raw := maskedFrame(opBinary, payload)
	frame, err := readFrame(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(frame.payload, payload) {
		t.Fatalf("payload mismatch, len=%d", len(frame.payload))
	}
}

func TestReadFrameRejectsUnmasked(t *testing.T) {
	raw := []byte{0x80 | opText, 0x02, 'h', 'i'}
	_, err := readFrame(bufio.NewReader(bytes.NewReader(raw)))
	if !errors.Is(err, errUnmaskedFrame) {
		t.Fatalf("expected errUnmaskedFrame, got %v", err)
	}
}

func TestReadFrameRejects64BitLength(t *testing.T) {
	raw := []byte{0x80 | opBinary, 0x80 | 127, 0, 0, 0, 0, 0, 0, 0, 1}
	_, err := readFrame(bufio.NewReader(bytes.NewReader(raw)))
	if err == nil || !strings.Contains(err.Error(), "64-bit") {
		t.Fatalf("expected 64-bit length error, got %v", err)
	}
}

func TestWriteFrameLengthEncodings(t *testing.T) {
	cases := []struct {
		name       string
		payloadLen int
		wantHeader []byte
	}{
		{"short", 5, []byte{0x80 | opText, 5}},
		{"extended 16-bit", 300, []byte{0x80 | opText, 126, 0x01, 0x2C}},
		{"extended 64-bit", 70000, []byte{0x80 | opText, 127, 0, 0, 0, 0, 0, 0x01, 0x11, 0x70}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			payload := bytes.Repeat([]byte("a"), c.payloadLen)
			if err := writeFrame(&buf, opText, payload); err != nil {
				t.Fatalf("writeFrame: %v", err)
			}
			got := buf.Bytes()
			if !bytes.HasPrefix(got, c.wantHeader) {
				t.Fatalf("header = % x, want prefix % x", got[:len(c.wantHeader)], c.wantHeader)
			}
			if len(got) != len(c.wantHeader)+c.payloadLen {
				t.Fatalf("frame length = %d", len(got))
			}
		})
	}
}

func TestWebSocketEchoEndToEnd(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := BuildServer(0, 2, "", "", "127.0.0.1", false)
	go srv.Serve(listener)
	defer srv.Shutdown()

	url := "ws://" + listener.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("echo me")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if messageType != websocket.TextMessage || string(payload) != "echo me" {
		t.Fatalf("unexpected echo: type=%d payload=%q", messageType, payload)
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		t.Fatalf("WriteControl: %v", err)
	}
}

func TestWebSocketUpgradeWithoutKeyIs400(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := BuildServer(0, 2, "", "", "127.0.0.1", false)
	go srv.Serve(listener)
	defer srv.Shutdown()

	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	request := "GET /ws HTTP/1.1\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"\r\n"
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 400 ") {
		t.Fatalf("expected 400 status line, got %q", line)
	}
}
