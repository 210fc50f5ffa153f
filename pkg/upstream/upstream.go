package upstream

import (
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable reports that every configured forwarder failed.
var ErrUnavailable = errors.New("no upstream resolver available")

const defaultTimeout = 2000 * time.Millisecond

// Config is the derived forwarder configuration, recomputed whenever an
// upstream setting changes. A malformed address leaves its slot nil.
type Config struct {
	Primary   *net.UDPAddr
	Secondary *net.UDPAddr
	Timeout   time.Duration
}

// ParseConfig builds a Config from the raw settings values.
func ParseConfig(primary, secondary, timeoutMS string) Config {
	cfg := Config{Timeout: defaultTimeout}

	if ms, err := strconv.Atoi(timeoutMS); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	} else if timeoutMS != "" {
		logrus.Warnf("invalid upstream timeout %q, using %v", timeoutMS, defaultTimeout)
	}

	cfg.Primary = parseAddr(primary)
	cfg.Secondary = parseAddr(secondary)

	return cfg
}

func parseAddr(addr string) *net.UDPAddr {
	if addr == "" {
		return nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		logrus.Warnf("invalid upstream address %q: %v", addr, err)
		return nil
	}
	return udpAddr
}

// Configured reports whether at least one forwarder slot is usable.
func (c Config) Configured() bool {
	return c.Primary != nil || c.Secondary != nil
}

// Resolver forwards raw query datagrams to the configured upstreams with
// primary/secondary failover. The configuration is swapped atomically on
// settings changes; the query path reads it lock-free.
type Resolver struct {
	config atomic.Pointer[Config]
}

func NewResolver(cfg Config) *Resolver {
	r := &Resolver{}
	r.config.Store(&cfg)
	return r
}

func (r *Resolver) SetConfig(cfg Config) {
	r.config.Store(&cfg)
}

func (r *Resolver) Config() Config {
	return *r.config.Load()
}

// Configured reports whether the resolver currently has anywhere to
// forward to.
func (r *Resolver) Configured() bool {
	return r.Config().Configured()
}

// Forward sends the caller's query datagram verbatim and returns the
// first non-empty reply datagram, untouched. The transaction id is
// preserved because neither direction is re-serialized.
func (r *Resolver) Forward(query []byte) ([]byte, error) {
	cfg := r.Config()

	for _, addr := range []*net.UDPAddr{cfg.Primary, cfg.Secondary} {
		if addr == nil {
			continue
		}

		reply, err := exchange(addr, query, cfg.Timeout)
		if err != nil {
			logrus.Warnf("upstream %v failed: %v", addr, err)
			continue
		}
		return reply, nil
	}

	return nil, ErrUnavailable
}

// exchange performs one UDP round trip on a fresh ephemeral socket,
// bounded by timeout.
func exchange(addr *net.UDPAddr, query []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	if _, err := conn.Write(query); err != nil {
		return nil, err
	}

	reply := make([]byte, dns.MaxMsgSize)
	n, err := conn.Read(reply)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("empty reply")
	}

	return reply[:n], nil
}
