// Package dnsfilter implements a UDP DNS responder that refuses to resolve forbidden domains.
//
// Queries for forbidden names are answered with NXDOMAIN. Other queries are
// forwarded to the upstream resolver, or answered with REFUSED when there is none.
package dnsfilter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/database64128/domaincheck-go/checker"
	"github.com/database64128/domaincheck-go/conn"
	"github.com/database64128/domaincheck-go/jsoncfg"
	"go.uber.org/zap"
	"golang.org/x/net/dns/dnsmessage"
)

const (
	// Source is the stats source name of DNS queries.
	Source = "dns"

	// maxDNSPacketSize is the maximum query size to accept.
	maxDNSPacketSize = 1232

	// minUDPPayloadSize is the response size every client accepts.
	minUDPPayloadSize = 512

	// maxUpstreamPacketSize is the largest UDP response the upstream can send.
	maxUpstreamPacketSize = 65535

	defaultUpstreamTimeout = 5 * time.Second
)

var errNotQuery = errors.New("not a query")

// Config is the configuration for a DNS filter.
type Config struct {
	// Enabled controls whether the DNS filter is enabled.
	Enabled bool `json:"enabled"`

	// Listen is the UDP address to listen on.
	Listen string `json:"listen"`

	// ListenerFwmark sets the listener's fwmark on Linux.
	ListenerFwmark int `json:"listenerFwmark"`

	// Upstream is the address and port of the resolver that allowed queries are forwarded to.
	// If unset, allowed queries are refused.
	Upstream netip.AddrPort `json:"upstream"`

	// UpstreamTimeout is how long to wait for the upstream resolver.
	// Defaults to 5 seconds.
	UpstreamTimeout jsoncfg.Duration `json:"upstreamTimeout"`
}

// Server creates a DNS filter from the config.
func (c *Config) Server(logger *zap.Logger, ck *checker.Checker) (*Server, error) {
	if c.Listen == "" {
		return nil, errors.New("missing listen address")
	}

	timeout := c.UpstreamTimeout.Value()
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}

	return &Server{
		logger:          logger,
		ck:              ck,
		listen:          c.Listen,
		fwmark:          c.ListenerFwmark,
		upstream:        c.Upstream,
		upstreamTimeout: timeout,
	}, nil
}

// Server is the DNS filter server.
type Server struct {
	logger          *zap.Logger
	ck              *checker.Checker
	listen          string
	fwmark          int
	upstream        netip.AddrPort
	upstreamTimeout time.Duration
	serverConn      *net.UDPConn
	wg              sync.WaitGroup
}

// ZapField implements [domaincheck.Service.ZapField].
func (s *Server) ZapField() zap.Field {
	return zap.String("server", "dns")
}

// Addr returns the listener's address, or nil if the server has not been started.
func (s *Server) Addr() net.Addr {
	if s.serverConn == nil {
		return nil
	}
	return s.serverConn.LocalAddr()
}

// Start implements [domaincheck.Service.Start].
func (s *Server) Start(ctx context.Context) error {
	serverConn, err := conn.ListenUDP(ctx, "udp", s.listen, s.fwmark)
	if err != nil {
		return err
	}
	s.serverConn = serverConn

	s.wg.Add(1)
	go func() {
		s.serve()
		s.wg.Done()
	}()

	s.logger.Info("Started DNS filter",
		zap.Stringer("listenAddress", serverConn.LocalAddr()),
		zap.Stringer("upstream", s.upstream),
	)
	return nil
}

func (s *Server) serve() {
	b := make([]byte, maxDNSPacketSize)

	for {
		n, clientAddrPort, err := s.serverConn.ReadFromUDPAddrPort(b)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to read query",
				zap.Stringer("clientAddress", clientAddrPort),
				zap.Int("packetLength", n),
				zap.Error(err),
			)
			continue
		}

		query := make([]byte, n)
		copy(query, b)

		s.wg.Add(1)
		go func() {
			s.handle(query, clientAddrPort)
			s.wg.Done()
		}()
	}
}

func (s *Server) handle(query []byte, clientAddrPort netip.AddrPort) {
	resp, err := s.respond(query)
	if err != nil {
		s.logger.Debug("Dropped query",
			zap.Stringer("clientAddress", clientAddrPort),
			zap.Int("packetLength", len(query)),
			zap.Error(err),
		)
		return
	}

	if _, err = s.serverConn.WriteToUDPAddrPort(resp, clientAddrPort); err != nil {
		s.logger.Warn("Failed to write response",
			zap.Stringer("clientAddress", clientAddrPort),
			zap.Error(err),
		)
	}
}

// respond returns the response to the query.
// Packets that cannot be answered return an error.
func (s *Server) respond(query []byte) ([]byte, error) {
	var parser dnsmessage.Parser

	header, err := parser.Start(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if header.Response {
		return nil, errNotQuery
	}
	if header.OpCode != 0 {
		return reply(header, nil, dnsmessage.RCodeNotImplemented)
	}

	question, err := parser.Question()
	if err != nil {
		return reply(header, nil, dnsmessage.RCodeFormatError)
	}

	payloadSize := clientPayloadSize(&parser)

	r := s.ck.Check(Source, QueryName(question.Name))
	if r.Forbidden {
		return reply(header, &question, dnsmessage.RCodeNameError)
	}

	if !s.upstream.IsValid() {
		return reply(header, &question, dnsmessage.RCodeRefused)
	}

	resp, err := s.forward(query, header.ID)
	if err != nil {
		s.logger.Warn("Failed to forward query",
			zap.Stringer("name", question.Name),
			zap.Stringer("upstream", s.upstream),
			zap.Error(err),
		)
		return reply(header, &question, dnsmessage.RCodeServerFailure)
	}
	if len(resp) > payloadSize {
		return truncatedReply(resp, header, &question)
	}
	return resp, nil
}

// clientPayloadSize returns the largest response the client accepts over UDP,
// from the EDNS(0) OPT record in the query's additional section.
// The parser must be positioned after the first question.
func clientPayloadSize(parser *dnsmessage.Parser) int {
	if parser.SkipAllQuestions() != nil ||
		parser.SkipAllAnswers() != nil ||
		parser.SkipAllAuthorities() != nil {
		return minUDPPayloadSize
	}

	for {
		h, err := parser.AdditionalHeader()
		if err != nil {
			return minUDPPayloadSize
		}
		if h.Type == dnsmessage.TypeOPT {
			// The class of an OPT record is the requestor's UDP payload size.
			return max(int(h.Class), minUDPPayloadSize)
		}
		if err = parser.SkipAdditional(); err != nil {
			return minUDPPayloadSize
		}
	}
}

// forward sends the query to the upstream resolver and returns its response.
func (s *Server) forward(query []byte, id uint16) ([]byte, error) {
	c, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(s.upstream))
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err = c.SetDeadline(time.Now().Add(s.upstreamTimeout)); err != nil {
		return nil, err
	}

	if _, err = c.Write(query); err != nil {
		return nil, err
	}

	b := make([]byte, maxUpstreamPacketSize)
	var parser dnsmessage.Parser

	for {
		n, err := c.Read(b)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, fmt.Errorf("upstream timed out after %s", s.upstreamTimeout)
			}
			return nil, err
		}

		header, err := parser.Start(b[:n])
		if err != nil || !header.Response || header.ID != id {
			// Stray packet.
			continue
		}

		return b[:n], nil
	}
}

// QueryName returns the domain in the question name, without the trailing root dot.
// DNS names are case-insensitive, so the result is lowercased.
func QueryName(name dnsmessage.Name) string {
	return strings.ToLower(strings.TrimSuffix(name.String(), "."))
}

// reply builds a response without answers.
// The question is echoed back if not nil.
func reply(header dnsmessage.Header, question *dnsmessage.Question, rcode dnsmessage.RCode) ([]byte, error) {
	return build(dnsmessage.Header{
		ID:                 header.ID,
		Response:           true,
		OpCode:             header.OpCode,
		RecursionDesired:   header.RecursionDesired,
		RecursionAvailable: true,
		RCode:              rcode,
	}, question)
}

// truncatedReply builds the TC response to a query whose upstream response
// does not fit in the client's UDP payload size.
// It keeps the upstream response's header flags and drops all records but the question.
func truncatedReply(resp []byte, header dnsmessage.Header, question *dnsmessage.Question) ([]byte, error) {
	var parser dnsmessage.Parser
	respHeader, err := parser.Start(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream response header: %w", err)
	}
	respHeader.ID = header.ID
	respHeader.Truncated = true
	return build(respHeader, question)
}

func build(respHeader dnsmessage.Header, question *dnsmessage.Question) ([]byte, error) {
	b := dnsmessage.NewBuilder(make([]byte, 0, minUDPPayloadSize), respHeader)
	b.EnableCompression()

	if question != nil {
		if err := b.StartQuestions(); err != nil {
			return nil, err
		}
		if err := b.Question(*question); err != nil {
			return nil, err
		}
	}

	return b.Finish()
}

// Stop implements [domaincheck.Service.Stop].
func (s *Server) Stop() error {
	if s.serverConn == nil {
		return nil
	}
	if err := s.serverConn.Close(); err != nil {
		return err
	}
	s.wg.Wait()
	return nil
}
