package server

import (
	"errors"
	"fmt"
	"io/fs"
)

// ParseError reports malformed HTTP input. The server converts it to a 400
// response before closing the connection.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "error parsing HTTP request: " + e.Message
}

func newParseError(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// ApiError carries a ready-to-send HTTP response plus optional request context
// used when logging the failure.
type ApiError struct {
	Response *Response
	Method   string
	Path     string
}

func (e *ApiError) Error() string {
	if e.Method != "" || e.Path != "" {
		return fmt.Sprintf("api error %d for %s %s", e.Response.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("api error %d", e.Response.StatusCode)
}

// NewApiError builds an ApiError with a JSON body {"message": ...}.
func NewApiError(status int, message string) *ApiError {
	return &ApiError{
		Response: NewResponse(JSONBody{Value: map[string]any{"message": message}}, "", status),
	}
}

// NewApiErrorHTML builds an ApiError with an HTML error page body.
func NewApiErrorHTML(status int, message string) *ApiError {
	return &ApiError{Response: formatErrorPage(status, message)}
}

// NewApiErrorResponse wraps an arbitrary response, typically an auth challenge.
func NewApiErrorResponse(resp *Response) *ApiError {
	return &ApiError{Response: resp}
}

// AsApiError converts any handler error into an ApiError. File-not-found maps
// to a 404 HTML page, malformed input to 400, anything else to 500.
func AsApiError(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return NewApiError(400, parseErr.Error())
	}
	if errors.Is(err, fs.ErrNotExist) {
		return NewApiErrorHTML(404, "IO Error: "+err.Error())
	}
	return NewApiError(500, err.Error())
}

const errorPageFormat = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Error</title>
    <style>
    body {
        display: flex;
        justify-content: center;
        align-items: center;
        height: 100vh;
        font-family: Arial, sans-serif;
    }
    .error-container {
        text-align: center;
    }
    .error-container h1 {
        font-size: 3em;
        color: #ff0000;
    }
    .error-container p {
        font-size: 1.5em;
    }
    </style>
</head>

<body>
    <div class="error-container">
        <h1>%d %s</h1>
        <p>%s</p>
    </div>
</body>
</html>`

func formatErrorPage(status int, message string) *Response {
	html := fmt.Sprintf(errorPageFormat, status, CanonicalReason(status), message)
	return NewResponse(TextBody(html), "text/html", status)
}

// CanonicalReason returns the reason phrase for the status codes the server emits.
func CanonicalReason(status int) string {
	switch status {
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown Status Code"
	}
}
