package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// HttpServer owns the listener, the worker pool, and the router. The
// configuration is immutable once Run is called; all workers share it
// read-only.
type HttpServer struct {
	port     uint16
	threads  int
	bindAddr string
	certPath string
	certPass string
	compress bool

	logger *Logger
	router *Router

	mu       sync.Mutex
	listener net.Listener
}

// BuildServer assembles a server from the immutable configuration values.
// Routes, credentials, CORS, and the logger are attached before Run.
func BuildServer(port uint16, threads int, certPath, certPass, bindAddr string, compress bool) *HttpServer {
	return &HttpServer{
		port:     port,
		threads:  threads,
		bindAddr: bindAddr,
		certPath: certPath,
		certPass: certPass,
		compress: compress,
		router:   NewRouter(),
	}
}

// WithCredentials enables the Basic-auth gate for routes registered with
// authorize.
func (s *HttpServer) WithCredentials(username, password string) *HttpServer {
	s.router.WithCredentials(username, password)
	return s
}

// WithLogger attaches the color logger to the server and router.
func (s *HttpServer) WithLogger() *HttpServer {
	s.logger = NewLogger()
	s.router.WithLogger(s.logger)
	return s
}

// WithCorsPolicy attaches the CORS header rows.
func (s *HttpServer) WithCorsPolicy(cors *Cors) *HttpServer {
	s.router.WithCors(cors)
	return s
}

// AddRoutes invokes register against the router. Call before Run.
func (s *HttpServer) AddRoutes(register func(*Router)) *HttpServer {
	register(s.router)
	return s
}

// Run binds the listener and serves until Shutdown. A bind failure is fatal.
func (s *HttpServer) Run() error {
	addr := net.JoinHostPort(s.bindAddr, strconv.Itoa(int(s.port)))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	fmt.Printf("Server is running on port %d\n", s.port)
	return s.Serve(listener)
}

// Serve accepts connections from listener and dispatches each one onto a pool
// worker. The accept loop never blocks on a single slow connection.
func (s *HttpServer) Serve(listener net.Listener) error {
	facade, err := newStreamFacade(s.certPath, s.certPass)
	if err != nil {
		listener.Close()
		return err
	}
	pool, err := NewPool(s.threads, s.logger)
	if err != nil {
		listener.Close()
		return err
	}
	defer pool.Close()

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logError("", "accept failed: "+err.Error())
			continue
		}
		pool.Execute(func() {
			s.handleConnection(conn, facade)
		})
	}
}

// Shutdown closes the listener; Serve then drains the pool and returns.
func (s *HttpServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
}

// handleConnection runs the parse -> route -> write pipeline for one accepted
// socket. Every failure ends in either a written response or a logged I/O
// error.
func (s *HttpServer) handleConnection(raw net.Conn, facade *streamFacade) {
	defer raw.Close()
	connID := uuid.NewString()

	peerAddr := raw.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(peerAddr); err == nil {
		peerAddr = host
	}

	conn, err := facade.wrap(raw)
	if err != nil {
		s.logError(connID, "TLS handshake failed: "+err.Error())
		return
	}

	reader := bufio.NewReader(conn)
	req, err := readRequest(reader)
	if err != nil {
		s.logError(connID, err.Error())
		s.writeResponse(conn, connID, AsApiError(err).Response)
		return
	}

	if strings.EqualFold(req.Headers["Upgrade"], "websocket") {
		s.handleWebSocket(conn, reader, req, connID)
		return
	}

	var resp *Response
	contentType := req.Headers["Content-Type"]
	if strings.HasPrefix(contentType, "multipart/form-data") {
		target, _, _ := strings.Cut(req.Target, "?")
		uploaded, err := handleMultipartUpload(contentType, reader, target)
		if err != nil {
			apiErr := AsApiError(err)
			apiErr.Method = req.Method
			apiErr.Path = target
			s.logError(connID, apiErr.Error())
			resp = apiErr.Response
		} else {
			resp = uploaded
		}
	} else {
		body, _, err := readBody(req.Headers, reader)
		if err != nil {
			s.logError(connID, err.Error())
			s.writeResponse(conn, connID, AsApiError(err).Response)
			return
		}
		resp = s.router.Route(req.Target, req.Method, body, peerAddr, req.Headers)
	}

	s.writeResponse(conn, connID, resp)
}

func (s *HttpServer) writeResponse(conn net.Conn, connID string, resp *Response) {
	if err := resp.Write(conn, s.compress); err != nil {
		s.logError(connID, "writing response: "+err.Error())
	}
}

func (s *HttpServer) logError(connID, message string) {
	if s.logger == nil {
		return
	}
	if connID == "" {
		s.logger.Stderr("{}", Arg(message, ColorRed))
		return
	}
	s.logger.Stderr("[{}] {}", Arg(connID, ColorCyan), Arg(message, ColorRed))
}
