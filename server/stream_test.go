package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

func TestStreamFacadePassThroughWithoutIdentity(t *testing.T) {
	facade, err := newStreamFacade("", "")
	if err != nil {
		t.Fatalf("newStreamFacade: %v", err)
	}
	if facade.leafCertificate() != nil {
		t.Fatalf("plain facade must not carry a certificate")
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	wrapped, err := facade.wrap(server)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if wrapped != server {
		t.Fatalf("plain facade must return the connection unchanged")
	}
}

func TestStreamFacadeMissingIdentityFile(t *testing.T) {
	if _, err := newStreamFacade(filepath.Join(t.TempDir(), "missing.p12"), "pass"); err == nil {
		t.Fatalf("expected error for missing identity file")
	}
}

func TestStreamFacadeUndecodableIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.p12")
	if err := os.WriteFile(path, []byte("not a pkcs12 archive"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := newStreamFacade(path, "pass"); err == nil {
		t.Fatalf("expected error for undecodable identity")
	}
}

func writeTestIdentity(t *testing.T, password string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	archive, err := pkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		t.Fatalf("pkcs12 encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "identity.p12")
	if err := os.WriteFile(path, archive, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestStreamFacadeLoadsIdentity(t *testing.T) {
	path := writeTestIdentity(t, "changeit")

	facade, err := newStreamFacade(path, "changeit")
	if err != nil {
		t.Fatalf("newStreamFacade: %v", err)
	}
	leaf := facade.leafCertificate()
	if leaf == nil || leaf.Subject.CommonName != "localhost" {
		t.Fatalf("unexpected leaf certificate: %+v", leaf)
	}
}

func TestStreamFacadeWrongPassword(t *testing.T) {
	path := writeTestIdentity(t, "correct")
	if _, err := newStreamFacade(path, "wrong"); err == nil {
		t.Fatalf("expected error for wrong password")
	}
}

func TestServeOverTLS(t *testing.T) {
	path := writeTestIdentity(t, "changeit")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := BuildServer(0, 2, path, "changeit", "127.0.0.1", false)
	srv.AddRoutes(func(r *Router) {
		r.AddRoute("/secure", "GET", func(body string, params Params) (*Response, error) {
			return NewResponse(TextBody("over tls"), "text/plain", 200), nil
		}, false)
	})
	go srv.Serve(listener)
	defer srv.Shutdown()

	conn, err := tls.Dial("tcp", listener.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := conn.Write([]byte("GET /secure HTTP/1.1\r\nHost: localhost\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	response := string(buf[:n])
	if !strings.HasPrefix(response, "HTTP/1.1 200 OK\r\n") || !strings.Contains(response, "over tls") {
		t.Fatalf("unexpected TLS response: %q", response)
	}
}
