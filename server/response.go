package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

const serverProduct = "ScratchServer/1.0"

// Body is one of the four response body variants: in-memory text, in-memory
// JSON, a borrowed static byte slice, or a streamed file.
type Body interface {
	isBody()
}

// TextBody is an in-memory text body.
type TextBody string

func (TextBody) isBody() {}

// JSONBody is serialized with encoding/json when the response is written.
type JSONBody struct {
	Value any
}

func (JSONBody) isBody() {}

// StaticBody is a borrowed byte slice, typically an embedded asset.
type StaticBody struct {
	Data []byte
	Name string
}

func (StaticBody) isBody() {}

// FileBody streams an open file. The response owns the handle and closes it
// after the body is written. Attachment bodies additionally emit
// Content-Disposition.
type FileBody struct {
	File       *os.File
	Name       string
	Attachment bool
}

func (FileBody) isBody() {}

// Response is the unit every handler produces and the writer serializes.
// Headers preserve insertion order.
type Response struct {
	StatusCode  int
	ContentType string
	Headers     []Header
	Body        Body
}

type Header struct {
	Key   string
	Value string
}

// NewResponse builds a response. An empty contentType defaults to
// application/json.
func NewResponse(body Body, contentType string, status int) *Response {
	if contentType == "" {
		contentType = "application/json"
	}
	return &Response{
		StatusCode:  status,
		ContentType: contentType,
		Body:        body,
	}
}

// AddHeader appends a user header, preserving insertion order.
func (r *Response) AddHeader(key, value string) *Response {
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
	return r
}

// Write serializes the response over w. In-memory bodies are gzip-compressed
// when compress is set; file bodies always stream uncompressed.
func (r *Response) Write(w io.Writer, compress bool) error {
	switch body := r.Body.(type) {
	case nil:
		return r.writeHead(w, nil)
	case FileBody:
		return r.writeFile(w, body)
	default:
		payload, err := bodyBytes(body)
		if err != nil {
			fallback := NewApiError(400, "JSON Serialization Error: "+err.Error())
			return fallback.Response.Write(w, compress)
		}
		var extra []Header
		if compress {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			if _, err := gz.Write(payload); err != nil {
				return err
			}
			if err := gz.Close(); err != nil {
				return err
			}
			payload = buf.Bytes()
			extra = append(extra,
				Header{Key: "Content-Length", Value: strconv.Itoa(len(payload))},
				Header{Key: "Content-Encoding", Value: "gzip"},
				Header{Key: "Vary", Value: "Accept-Encoding"},
			)
		} else {
			extra = append(extra, Header{Key: "Content-Length", Value: strconv.Itoa(len(payload))})
		}
		if err := r.writeHead(w, extra); err != nil {
			return err
		}
		_, err = w.Write(payload)
		return err
	}
}

func bodyBytes(body Body) ([]byte, error) {
	switch b := body.(type) {
	case TextBody:
		return []byte(b), nil
	case JSONBody:
		return json.Marshal(b.Value)
	case StaticBody:
		return b.Data, nil
	default:
		return nil, fmt.Errorf("unsupported body variant %T", body)
	}
}

// writeHead emits the fixed header prefix, user headers in insertion order,
// body-dependent headers, and the blank line.
func (r *Response) writeHead(w io.Writer, extra []Header) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.StatusCode, CanonicalReason(r.StatusCode))
	fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
	b.WriteString("Connection: keep-alive\r\n")
	fmt.Fprintf(&b, "Server: %s\r\n", serverProduct)
	for _, h := range r.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Key, h.Value)
	}
	for _, h := range extra {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Key, h.Value)
	}
	b.WriteString("\r\n")
	_, err := w.Write(b.Bytes())
	return err
}

func (r *Response) writeFile(w io.Writer, body FileBody) error {
	defer body.File.Close()

	info, err := body.File.Stat()
	if err != nil {
		return err
	}
	extra := []Header{{Key: "Content-Length", Value: strconv.FormatInt(info.Size(), 10)}}
	if body.Attachment {
		extra = append(extra, Header{
			Key:   "Content-Disposition",
			Value: fmt.Sprintf("attachment; filename=%q", body.Name),
		})
	}
	if err := r.writeHead(w, extra); err != nil {
		return err
	}
	_, err = io.Copy(w, bufio.NewReader(body.File))
	return err
}
