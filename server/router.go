package server

import (
	"crypto/subtle"
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Params holds the union of path-parameter captures and query-string pairs.
// Query pairs overwrite captures of the same name.
type Params map[string]string

// Handler produces a response or an error for a matched route. Returned errors
// are converted through AsApiError.
type Handler func(body string, params Params) (*Response, error)

type route struct {
	pattern   *regexp.Regexp
	method    string
	handler   Handler
	authorize bool
}

// Credentials is the configured Basic-auth pair. Both fields are non-empty.
type Credentials struct {
	Username string
	Password string
}

// Cors holds the header rows appended to responses. Preflights receive them as
// the sole header set.
type Cors struct {
	headers []Header
}

func NewCors() *Cors {
	return &Cors{}
}

func (c *Cors) WithOrigins(value string) *Cors {
	c.headers = append(c.headers, Header{Key: "Access-Control-Allow-Origin", Value: value})
	return c
}

func (c *Cors) WithMethods(value string) *Cors {
	c.headers = append(c.headers, Header{Key: "Access-Control-Allow-Methods", Value: value})
	return c
}

func (c *Cors) WithHeaders(value string) *Cors {
	c.headers = append(c.headers, Header{Key: "Access-Control-Allow-Headers", Value: value})
	return c
}

func (c *Cors) WithCredentials(value string) *Cors {
	c.headers = append(c.headers, Header{Key: "Access-Control-Allow-Credentials", Value: value})
	return c
}

// Router matches request paths against patterns registered at startup. It is
// read-only after the server starts and shared by all workers without locking.
type Router struct {
	routes      []route
	logger      *Logger
	cors        *Cors
	credentials *Credentials
}

func NewRouter() *Router {
	return &Router{}
}

func (rt *Router) WithLogger(logger *Logger) *Router {
	rt.logger = logger
	return rt
}

func (rt *Router) WithCors(cors *Cors) *Router {
	rt.cors = cors
	return rt
}

func (rt *Router) WithCredentials(username, password string) *Router {
	rt.credentials = &Credentials{Username: username, Password: password}
	return rt
}

// AddRoute compiles path into a pattern and appends the route. Registration
// order defines matching precedence. "/*" captures the whole path as
// "wildcard"; "{name}" segments become named captures.
func (rt *Router) AddRoute(path, method string, handler Handler, authorize bool) {
	rt.routes = append(rt.routes, route{
		pattern:   compilePattern(path),
		method:    method,
		handler:   handler,
		authorize: authorize,
	})
}

func compilePattern(path string) *regexp.Regexp {
	if path == "/*" {
		return regexp.MustCompile("^(?P<wildcard>.*)$")
	}
	pattern := strings.ReplaceAll(path, "{", "(?P<")
	pattern = strings.ReplaceAll(pattern, "}", ">[^/]+)")
	return regexp.MustCompile("^" + pattern + "$")
}

// Route dispatches one request and always returns a writable response.
// Handler errors are converted, given request context, and logged here.
func (rt *Router) Route(path, method, body, peerAddr string, headers map[string]string) *Response {
	stripped, query, _ := strings.Cut(path, "?")

	if method == "OPTIONS" {
		resp := NewResponse(nil, "", 204)
		if rt.cors != nil {
			resp.Headers = append(resp.Headers, rt.cors.headers...)
		}
		return resp
	}

	for _, r := range rt.routes {
		match := r.pattern.FindStringSubmatch(stripped)
		if match == nil {
			continue
		}
		if r.method != method {
			resp := NewApiError(405, "Method Not Allowed").Response
			return rt.finish(resp, stripped, method, peerAddr)
		}
		if r.authorize {
			if challenge := rt.authorizeRequest(headers); challenge != nil {
				return rt.finish(challenge, stripped, method, peerAddr)
			}
		}

		params := make(Params)
		for i, name := range r.pattern.SubexpNames() {
			if i == 0 || name == "" || i >= len(match) || match[i] == "" {
				continue
			}
			params[name] = match[i]
		}
		if query != "" {
			for _, pair := range strings.Split(query, "&") {
				if key, value, ok := strings.Cut(pair, "="); ok {
					params[key] = value
				}
			}
		}

		resp, err := r.handler(body, params)
		if err != nil {
			apiErr := AsApiError(err)
			apiErr.Method = method
			apiErr.Path = stripped
			resp = apiErr.Response
		}
		return rt.finish(resp, stripped, method, peerAddr)
	}

	resp := NewResponse(JSONBody{Value: map[string]any{
		"message": "No route found for path " + path,
	}}, "", 404)
	return rt.finish(resp, stripped, method, peerAddr)
}

// finish appends CORS headers, logs the response line, and returns resp.
func (rt *Router) finish(resp *Response, path, method, peerAddr string) *Response {
	if rt.cors != nil {
		resp.Headers = append(resp.Headers, rt.cors.headers...)
	}
	rt.logResponse(resp.StatusCode, path, method, peerAddr)
	return resp
}

func (rt *Router) logResponse(status int, path, method, peerAddr string) {
	if rt.logger == nil {
		return
	}
	rt.logger.Stdout("{} - {} - {} - {} {}",
		Arg(time.Now().Format("2006-01-02 15:04:05"), ColorWhite),
		Arg(peerAddr, ColorOrange),
		Arg(strconv.Itoa(status), statusCodeColor(status)),
		Arg(method, ColorWhite),
		Arg(path, ColorWhite),
	)
}

// authorizeRequest enforces Basic auth for routes registered with authorize.
// It returns nil when the request may proceed, otherwise the response to send.
func (rt *Router) authorizeRequest(headers map[string]string) *Response {
	if rt.credentials == nil {
		return NewApiError(500, "Missing credentials configuration").Response
	}
	authHeader, ok := headers["Authorization"]
	if !ok {
		return basicChallenge()
	}
	return challengeBasicAuth(authHeader, rt.credentials)
}

func basicChallenge() *Response {
	resp := NewResponse(JSONBody{Value: map[string]any{"message": "Unauthorized"}}, "", 401)
	return resp.AddHeader("WWW-Authenticate", "Basic")
}

// challengeBasicAuth validates "Basic base64(user:pass)" against the
// configured credentials using constant-time comparison.
func challengeBasicAuth(authHeader string, creds *Credentials) *Response {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 {
		return basicChallenge()
	}
	if parts[0] != "Basic" {
		return NewApiError(401, "Unauthorized - unsupported auth challenge").Response
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || !utf8.Valid(decoded) {
		return basicChallenge()
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return basicChallenge()
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) == 1
	if !userOK || !passOK {
		return basicChallenge()
	}
	return nil
}
