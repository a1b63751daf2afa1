package server

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Request is the transient result of parsing one HTTP/1.1 request prefix.
// Header names keep the exact case the client sent.
type Request struct {
	Method  string
	Target  string
	Proto   string
	Headers map[string]string
}

// readRequest consumes CRLF-terminated lines up to the blank line and parses
// the request line and headers. Any malformed input yields a *ParseError.
func readRequest(reader *bufio.Reader) (*Request, error) {
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, newParseError("reading request: %v", err)
		}
		if line == "\r\n" {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	if len(lines) == 0 {
		return nil, newParseError("empty request")
	}

	tokens := strings.Fields(lines[0])
	if len(tokens) != 3 {
		return nil, newParseError("malformed request line %q", lines[0])
	}
	if !strings.HasPrefix(tokens[2], "HTTP/1.") {
		return nil, newParseError("unsupported protocol %q", tokens[2])
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, newParseError("malformed header line %q", line)
		}
		headers[name] = strings.TrimSpace(value)
	}

	return &Request{
		Method:  tokens[0],
		Target:  tokens[1],
		Proto:   tokens[2],
		Headers: headers,
	}, nil
}

// readBody consumes exactly Content-Length bytes and returns a lossy UTF-8
// view. Without the header the body is absent and the socket is left untouched.
func readBody(headers map[string]string, reader *bufio.Reader) (string, bool, error) {
	raw, ok := headers["Content-Length"]
	if !ok {
		return "", false, nil
	}
	length, err := strconv.Atoi(raw)
	if err != nil || length < 0 {
		return "", false, newParseError("invalid Content-Length %q", raw)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", false, newParseError("reading body: %v", err)
	}
	return strings.ToValidUTF8(string(buf), "�"), true, nil
}

// handleMultipartUpload streams a single multipart file part to disk under the
// request path, which must stay inside the working directory. The part body is
// copied up to the closing boundary marker rather than computed from
// Content-Length.
func handleMultipartUpload(contentType string, reader *bufio.Reader, target string) (*Response, error) {
	idx := strings.Index(contentType, "boundary=")
	if idx < 0 {
		return nil, NewApiError(400, "Missing multipart boundary")
	}
	boundary := contentType[idx+len("boundary="):]
	if semi := strings.IndexByte(boundary, ';'); semi >= 0 {
		boundary = boundary[:semi]
	}
	boundary = strings.Trim(boundary, `"`)

	partHeaders, err := readPartHeaders(reader, "--"+boundary)
	if err != nil {
		return nil, err
	}

	disposition, ok := partHeaders["Content-Disposition"]
	if !ok {
		return nil, NewApiError(400, "Missing content disposition")
	}
	filename, err := parseDispositionFilename(disposition)
	if err != nil {
		return nil, err
	}

	dest, err := resolveUploadTarget(target, filename)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := copyUntilBoundary(file, reader, boundary); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("File %s uploaded successfully.", filename)
	return NewResponse(TextBody(message), "text/plain", 200), nil
}

// readPartHeaders reads the part's header block, skipping the opening boundary
// line and stopping at the blank CRLF.
func readPartHeaders(reader *bufio.Reader, boundaryLine string) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, newParseError("reading multipart headers: %v", err)
		}
		if strings.TrimSpace(line) == boundaryLine {
			continue
		}
		if line == "\r\n" {
			return headers, nil
		}
		name, value, ok := strings.Cut(strings.TrimRight(line, "\r\n"), ":")
		if !ok {
			return nil, newParseError("malformed multipart header %q", line)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
}

func parseDispositionFilename(disposition string) (string, error) {
	_, after, ok := strings.Cut(disposition, `filename="`)
	if !ok {
		return "", NewApiError(400, "Error parsing file name")
	}
	filename, _, ok := strings.Cut(after, `"`)
	if !ok || filename == "" {
		return "", NewApiError(400, "Error parsing file name")
	}
	return filename, nil
}

// resolveUploadTarget joins ./<target>/<filename> and rejects paths escaping
// the working directory.
func resolveUploadTarget(target, filename string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dest := filepath.Join(wd, strings.TrimPrefix(target, "/"), filename)
	rel, err := filepath.Rel(wd, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", NewApiError(400, "Upload path escapes the working directory")
	}
	return dest, nil
}

// copyUntilBoundary streams bytes from reader to dst until the
// "\r\n--boundary" terminator. The terminator is consumed, trailing bytes of
// the closing boundary are left unread.
func copyUntilBoundary(dst io.Writer, reader *bufio.Reader, boundary string) (int64, error) {
	delim := []byte("\r\n--" + boundary)
	out := bufio.NewWriter(dst)
	var written int64

	for {
		b, err := reader.ReadByte()
		if err != nil {
			return written, newParseError("unterminated multipart body: %v", err)
		}
		if b == delim[0] {
			rest, perr := reader.Peek(len(delim) - 1)
			if perr == nil && bytes.Equal(rest, delim[1:]) {
				if _, err := reader.Discard(len(delim) - 1); err != nil {
					return written, err
				}
				return written, out.Flush()
			}
			if perr != nil && perr != bufio.ErrBufferFull && len(rest) < len(delim)-1 && bytes.Equal(rest, delim[1:1+len(rest)]) {
				return written, newParseError("unterminated multipart body: %v", perr)
			}
		}
		if err := out.WriteByte(b); err != nil {
			return written, err
		}
		written++
	}
}
