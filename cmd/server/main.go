package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"scratch-server/server"
)

type options struct {
	port        uint16
	threads     int
	cert        string
	certPass    string
	silent      bool
	cors        bool
	ip          string
	auth        string
	compression bool
	index       string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "scratch-server",
		Version:      "1.0.0",
		Short:        "Simple HTTP server with TLS/SSL support",
		Long:         "Simple HTTP server with TLS/SSL support. Implemented api endpoints allow for navigating file system directories, uploading and downloading files.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.Uint16VarP(&opts.port, "port", "p", 7878, "Sets the port number")
	flags.IntVarP(&opts.threads, "threads", "t", 12, "Sets the number of threads")
	flags.StringVarP(&opts.cert, "cert", "c", "", "TLS/SSL certificate")
	flags.StringVar(&opts.certPass, "certpass", "", "TLS/SSL certificate password")
	flags.BoolVarP(&opts.silent, "silent", "s", false, "Disable logging")
	flags.BoolVar(&opts.cors, "cors", false, "Enable CORS with Access-Control-Allow-Origin header set to *")
	flags.StringVar(&opts.ip, "ip", "0.0.0.0", "Ip address to bind to")
	flags.StringVarP(&opts.auth, "auth", "a", "", "Enable HTTP Basic Auth. Pass username:password as argument")
	flags.BoolVar(&opts.compression, "compression", false, "Enable gzip response compression")
	flags.StringVar(&opts.index, "index", "", "Sets the path to custom index html file to serve")

	return cmd
}

func run(opts *options) error {
	if net.ParseIP(opts.ip) == nil {
		return fmt.Errorf("invalid bind address %q", opts.ip)
	}
	if opts.index != "" {
		if err := validateIndexPath(opts.index); err != nil {
			return err
		}
	}

	srv := server.BuildServer(opts.port, opts.threads, opts.cert, opts.certPass, opts.ip, opts.compression)

	authorize := false
	if opts.auth != "" {
		username, password, err := parseAuth(opts.auth)
		if err != nil {
			return err
		}
		srv.WithCredentials(username, password)
		authorize = true
	}
	if !opts.silent {
		srv.WithLogger()
	}
	if opts.cors {
		srv.WithCorsPolicy(server.NewCors().
			WithOrigins("*").
			WithMethods("GET, POST, PUT, DELETE").
			WithHeaders("Content-Type, Authorization").
			WithCredentials("true"))
	}

	register, err := createRoutes(authorize, opts.index)
	if err != nil {
		return err
	}
	srv.AddRoutes(register)

	return srv.Run()
}

// parseAuth splits a user:pass argument; both halves must be non-empty.
func parseAuth(arg string) (string, string, error) {
	username, password, ok := strings.Cut(arg, ":")
	if !ok || username == "" || password == "" || strings.Contains(password, ":") {
		return "", "", errors.New("the auth format must be username:password")
	}
	return username, password, nil
}

func validateIndexPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("index file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("index path %q is a directory", path)
	}
	return nil
}
