package server

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
)

const websocketMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	opText   byte = 0x01
	opBinary byte = 0x02
	opClose  byte = 0x08
	opPing   byte = 0x09
	opPong   byte = 0x0A
)

var errUnmaskedFrame = errors.New("client frame is not masked")

// computeAcceptKey derives Sec-WebSocket-Accept from the client key.
func computeAcceptKey(key string) string {
	h := sha1.New()
	io.WriteString(h, key+websocketMagic)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// handleWebSocket performs the upgrade handshake and runs the frame loop
// until the client closes or errors.
func (s *HttpServer) handleWebSocket(conn net.Conn, reader *bufio.Reader, req *Request, connID string) {
	key, ok := req.Headers["Sec-WebSocket-Key"]
	if !ok {
		s.logError(connID, "websocket upgrade without Sec-WebSocket-Key")
		s.writeResponse(conn, connID, NewApiError(400, "Missing Sec-WebSocket-Key header").Response)
		return
	}

	handshake := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n",
		computeAcceptKey(key),
	)
	if _, err := io.WriteString(conn, handshake); err != nil {
		s.logError(connID, "websocket handshake write: "+err.Error())
		return
	}

	if err := s.websocketLoop(conn, reader, connID); err != nil {
		s.logError(connID, "websocket: "+err.Error())
	}
}

// websocketLoop echoes text frames, logs binary frames, answers pings with
// pongs, and sends a ping on the iteration after a pong arrives.
func (s *HttpServer) websocketLoop(conn net.Conn, reader *bufio.Reader, connID string) error {
	pingNext := false
	for {
		if pingNext {
			pingNext = false
			if err := writeFrame(conn, opPing, nil); err != nil {
				return err
			}
		}

		frame, err := readFrame(reader)
		if err != nil {
			return err
		}

		switch frame.opcode {
		case opText:
			if err := writeFrame(conn, opText, frame.payload); err != nil {
				return err
			}
		case opBinary:
			if s.logger != nil {
				s.logger.Stdout("[{}] received {} binary bytes",
					Arg(connID, ColorCyan),
					Arg(strconv.Itoa(len(frame.payload)), ColorWhite),
				)
			}
		case opPing:
			if err := writeFrame(conn, opPong, nil); err != nil {
				return err
			}
		case opPong:
			pingNext = true
		case opClose:
			return nil
		default:
			return fmt.Errorf("unsupported opcode 0x%02x", frame.opcode)
		}
	}
}

type wsFrame struct {
	fin     bool
	opcode  byte
	payload []byte
}

// readFrame decodes one client frame. Client frames must be masked; 64-bit
// extended lengths are not supported.
func readFrame(reader *bufio.Reader) (*wsFrame, error) {
	var header [2]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return nil, err
	}

	frame := &wsFrame{
		fin:    header[0]&0x80 != 0,
		opcode: header[0] & 0x0F,
	}
	if header[1]&0x80 == 0 {
		return nil, errUnmaskedFrame
	}

	length := int(header[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(reader, ext[:]); err != nil {
			return nil, err
		}
		length = int(binary.BigEndian.Uint16(ext[:]))
	case 127:
		return nil, errors.New("64-bit payload lengths are not supported")
	}

	var mask [4]byte
	if _, err := io.ReadFull(reader, mask[:]); err != nil {
		return nil, err
	}

	frame.payload = make([]byte, length)
	if _, err := io.ReadFull(reader, frame.payload); err != nil {
		return nil, err
	}
	for i := range frame.payload {
		frame.payload[i] ^= mask[i%4]
	}
	return frame, nil
}

// writeFrame encodes one unmasked server frame with the minimal length form.
func writeFrame(w io.Writer, opcode byte, payload []byte) error {
	var header [10]byte
	header[0] = 0x80 | (opcode & 0x0F)

	var n int
	switch {
	case len(payload) < 126:
		header[1] = byte(len(payload))
		n = 2
	case len(payload) < 65536:
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))
		n = 4
	default:
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:10], uint64(len(payload)))
		n = 10
	}

	if _, err := w.Write(header[:n]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
