package dnsserver

import (
	"net"
	"strings"
	"time"

	"github.com/localdns/localdns/pkg/cache"
	"github.com/localdns/localdns/pkg/db"
	"github.com/localdns/localdns/pkg/logworker"
	"github.com/localdns/localdns/pkg/model"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// QueryLogger receives one message per processed datagram.
type QueryLogger interface {
	Enqueue(msg logworker.Message) bool
}

// Forwarder relays a raw query datagram to an external resolver.
type Forwarder interface {
	Forward(query []byte) ([]byte, error)
	Configured() bool
}

// Handler processes one inbound datagram: parse, consult the cache,
// answer locally or forward, and emit a log message. Every outcome on
// the wire is a valid DNS response or silence; errors never escape to
// the socket.
type Handler struct {
	cache   *cache.Cache
	forward Forwarder
	logs    QueryLogger
	log     *logrus.Entry
}

func NewHandler(recordCache *cache.Cache, forward Forwarder, logs QueryLogger) *Handler {
	return &Handler{
		cache:   recordCache,
		forward: forward,
		logs:    logs,
		log:     logrus.WithField("component", "dns"),
	}
}

// HandlePacket returns the response datagram for buf, or nil when the
// datagram is dropped.
func (h *Handler) HandlePacket(buf []byte) []byte {
	start := time.Now()

	query := new(dns.Msg)
	if err := query.Unpack(buf); err != nil {
		h.log.Debugf("dropping unparsable datagram: %v", err)
		h.emit("", "", model.ResultError, start)
		return nil
	}

	if query.Response || query.Opcode != dns.OpcodeQuery || len(query.Question) == 0 {
		h.log.Debug("dropping datagram that is not a standard query")
		h.emit("", "", model.ResultError, start)
		return nil
	}

	question := query.Question[0]
	qname := strings.ToLower(strings.TrimSuffix(question.Name, "."))
	qtype := dns.Type(question.Qtype).String()

	if question.Qclass == dns.ClassINET {
		if record, ok := h.cache.Lookup(qname, qtype); ok {
			if out := h.answerLocal(query, question, record); out != nil {
				h.emit(qname, qtype, model.ResultLocal, start)
				return out
			}
		}
	}

	if h.forward.Configured() {
		reply, err := h.forward.Forward(buf)
		if err == nil {
			// Pass the upstream datagram through untouched; its id
			// already matches because the query went out verbatim.
			h.emit(qname, qtype, model.ResultForwarded, start)
			return reply
		}
		h.log.Debugf("forwarding %s failed: %v", qname, err)
	}

	h.emit(qname, qtype, model.ResultNXDomain, start)
	return h.nxdomain(query)
}

// answerLocal builds the single-RR authoritative response for a cache
// hit. Returns nil if the record content cannot be rendered.
func (h *Handler) answerLocal(query *dns.Msg, question dns.Question, record db.Record) []byte {
	rr := buildRR(question.Name, record)
	if rr == nil {
		h.log.Warnf("record %d has unusable content %q", record.ID, record.Content)
		return nil
	}

	m := new(dns.Msg)
	m.SetReply(query)
	m.Authoritative = true
	m.RecursionAvailable = true
	m.Answer = []dns.RR{rr}

	out, err := m.Pack()
	if err != nil {
		h.log.Errorf("failed to pack local answer for %s: %v", question.Name, err)
		return nil
	}
	return out
}

func buildRR(name string, record db.Record) dns.RR {
	hdr := dns.RR_Header{
		Name:   name,
		Rrtype: dns.StringToType[record.RecordType],
		Class:  dns.ClassINET,
		Ttl:    uint32(record.TTL),
	}

	switch record.RecordType {
	case model.RecordTypeA:
		ip := net.ParseIP(record.Content)
		if ip == nil || ip.To4() == nil {
			return nil
		}
		return &dns.A{Hdr: hdr, A: ip.To4()}
	case model.RecordTypeAAAA:
		ip := net.ParseIP(record.Content)
		if ip == nil {
			return nil
		}
		return &dns.AAAA{Hdr: hdr, AAAA: ip.To16()}
	case model.RecordTypeCname:
		return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(record.Content)}
	}

	return nil
}

func (h *Handler) nxdomain(query *dns.Msg) []byte {
	m := new(dns.Msg)
	m.SetRcode(query, dns.RcodeNameError)
	m.RecursionAvailable = true

	out, err := m.Pack()
	if err != nil {
		h.log.Errorf("failed to pack nxdomain response: %v", err)
		return nil
	}
	return out
}

func (h *Handler) emit(qname, qtype, result string, start time.Time) {
	h.logs.Enqueue(logworker.Message{
		QueryName:  qname,
		QType:      qtype,
		ResultType: result,
		DurationMs: time.Since(start).Milliseconds(),
	})
}
