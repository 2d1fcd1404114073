package api

import (
	"context"
	"errors"
	"net"
	"path"

	v1 "github.com/database64128/domaincheck-go/api/v1"
	"github.com/database64128/domaincheck-go/checker"
	"github.com/database64128/domaincheck-go/conn"
	"github.com/database64128/tfo-go/v2"
	"github.com/gofiber/contrib/fiberzap"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// Config stores the configuration for the RESTful API.
type Config struct {
	// Enabled controls whether the API server is enabled.
	Enabled bool `json:"enabled"`

	// DebugPprof enables pprof endpoints for debugging and profiling.
	// The endpoints are served under /debug/pprof, without the secret path.
	DebugPprof bool `json:"debugPprof"`

	// EnableTrustedProxyCheck enables trusted proxy checks.
	EnableTrustedProxyCheck bool `json:"enableTrustedProxyCheck"`

	// TrustedProxies is the list of trusted proxies.
	// This only takes effect if EnableTrustedProxyCheck is true.
	TrustedProxies []string `json:"trustedProxies"`

	// ProxyHeader is the header used to determine the client's IP address.
	// If empty, the remote peer's address is used.
	ProxyHeader string `json:"proxyHeader"`

	// SecretPath adds a secret path prefix to API endpoints.
	// If empty, no secret path is added.
	SecretPath string `json:"secretPath"`

	// Listen is the address to listen on.
	Listen string `json:"listen"`

	// ListenerFwmark sets the listener's fwmark on Linux.
	ListenerFwmark int `json:"listenerFwmark"`

	// ListenerTFO enables TCP Fast Open on the listener.
	ListenerTFO bool `json:"listenerTFO"`

	// MaxConns limits the number of simultaneous connections.
	// If zero, there is no limit.
	MaxConns int `json:"maxConns"`
}

// NewServer returns a new API server from the config.
func (c *Config) NewServer(logger *zap.Logger, ck *checker.Checker) (*Server, error) {
	if c.Listen == "" {
		return nil, errors.New("missing listen address")
	}
	if c.MaxConns < 0 {
		return nil, errors.New("negative connection limit")
	}

	app := NewApp(c, logger, ck)

	return &Server{
		logger:       logger,
		app:          app,
		listenConfig: conn.NewListenConfig(c.ListenerTFO, c.ListenerFwmark),
		listen:       c.Listen,
		maxConns:     c.MaxConns,
	}, nil
}

// NewApp returns a new fiber app serving the API with the config's middlewares.
func NewApp(c *Config, logger *zap.Logger, ck *checker.Checker) *fiber.App {
	app := fiber.New(fiber.Config{
		ProxyHeader:             c.ProxyHeader,
		DisableStartupMessage:   true,
		Network:                 fiber.NetworkTCP,
		EnableTrustedProxyCheck: c.EnableTrustedProxyCheck,
		TrustedProxies:          c.TrustedProxies,
	})

	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logger,
	}))

	if c.DebugPprof {
		app.Use(pprof.New())
	}

	var router fiber.Router = app
	if c.SecretPath != "" {
		router = app.Group(joinPatternPath("/", c.SecretPath))
	}

	api := router.Group("/api")
	v1.Routes(api, ck)

	return app
}

// joinPatternPath joins path elements into a pattern path.
func joinPatternPath(elem ...string) string {
	p := path.Join(elem...)
	if p == "" {
		return ""
	}
	// Add back the trailing slash removed by [path.Join].
	if last := elem[len(elem)-1]; last != "" && last[len(last)-1] == '/' {
		if p[len(p)-1] != '/' {
			return p + "/"
		}
	}
	return p
}

// Server is the RESTful API server.
type Server struct {
	logger       *zap.Logger
	app          *fiber.App
	listenConfig tfo.ListenConfig
	listen       string
	maxConns     int
	ln           net.Listener
}

// ZapField implements [domaincheck.Service.ZapField].
func (s *Server) ZapField() zap.Field {
	return zap.String("server", "api")
}

// Addr returns the listener's address, or nil if the server has not been started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start implements [domaincheck.Service.Start].
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listenConfig.Listen(ctx, "tcp", s.listen)
	if err != nil {
		return err
	}

	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.ln = ln

	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error("Failed to serve API", zap.Error(err))
		}
	}()

	s.logger.Info("Started API server", zap.Stringer("listenAddress", ln.Addr()))
	return nil
}

// Stop implements [domaincheck.Service.Stop].
func (s *Server) Stop() error {
	return s.app.Shutdown()
}
