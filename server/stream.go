package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// streamFacade wraps accepted sockets, terminating TLS when the server was
// built with a PKCS#12 identity and passing plain connections through
// otherwise.
type streamFacade struct {
	tlsConfig *tls.Config
}

// newStreamFacade loads the optional PKCS#12 identity. A missing or
// undecryptable identity file is a fatal startup error.
func newStreamFacade(certPath, certPass string) (*streamFacade, error) {
	if certPath == "" {
		return &streamFacade{}, nil
	}

	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("reading TLS identity: %w", err)
	}
	key, cert, caCerts, err := pkcs12.DecodeChain(data, certPass)
	if err != nil {
		return nil, fmt.Errorf("decoding TLS identity: %w", err)
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}
	identity := tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        cert,
	}
	return &streamFacade{
		tlsConfig: &tls.Config{Certificates: []tls.Certificate{identity}},
	}, nil
}

// wrap returns the read/write endpoint for an accepted connection, performing
// the TLS handshake when configured. A handshake failure only affects the one
// connection.
func (s *streamFacade) wrap(conn net.Conn) (net.Conn, error) {
	if s.tlsConfig == nil {
		return conn, nil
	}
	tlsConn := tls.Server(conn, s.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// leafCertificate exposes the parsed identity, used by tests and diagnostics.
func (s *streamFacade) leafCertificate() *x509.Certificate {
	if s.tlsConfig == nil || len(s.tlsConfig.Certificates) == 0 {
		return nil
	}
	return s.tlsConfig.Certificates[0].Leaf
}
