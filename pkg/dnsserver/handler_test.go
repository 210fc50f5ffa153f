package dnsserver

import (
	"errors"
	"net"
	"testing"

	"github.com/localdns/localdns/pkg/cache"
	"github.com/localdns/localdns/pkg/db"
	"github.com/localdns/localdns/pkg/logworker"
	"github.com/localdns/localdns/pkg/model"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	records []db.Record
}

func (s *stubSource) ActiveRecords() ([]db.Record, error) {
	return s.records, nil
}

type stubForwarder struct {
	reply      []byte
	err        error
	configured bool
	calls      int
}

func (f *stubForwarder) Forward(query []byte) ([]byte, error) {
	f.calls++
	return f.reply, f.err
}

func (f *stubForwarder) Configured() bool {
	return f.configured
}

type recordingLogger struct {
	msgs []logworker.Message
}

func (l *recordingLogger) Enqueue(msg logworker.Message) bool {
	l.msgs = append(l.msgs, msg)
	return true
}

func newTestHandler(t *testing.T, records []db.Record, forward *stubForwarder) (*Handler, *recordingLogger) {
	t.Helper()

	recordCache, err := cache.New(&stubSource{records: records})
	require.NoError(t, err)

	logs := &recordingLogger{}
	return NewHandler(recordCache, forward, logs), logs
}

func packQuery(t *testing.T, id uint16, name string, qtype uint16) []byte {
	t.Helper()

	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), qtype)
	q.Id = id

	buf, err := q.Pack()
	require.NoError(t, err)
	return buf
}

func unpack(t *testing.T, buf []byte) *dns.Msg {
	t.Helper()

	require.NotNil(t, buf)
	m := new(dns.Msg)
	require.NoError(t, m.Unpack(buf))
	return m
}

func TestExactAMatch(t *testing.T) {
	h, logs := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "app.local.test", RecordType: "A", Content: "127.0.0.1", TTL: 60, Active: true},
	}, &stubForwarder{})

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x1234, "app.local.test", dns.TypeA)))

	assert.Equal(t, uint16(0x1234), resp.Id)
	assert.True(t, resp.Response)
	assert.True(t, resp.Authoritative)
	assert.True(t, resp.RecursionAvailable)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)

	require.Len(t, resp.Question, 1)
	assert.Equal(t, "app.local.test.", resp.Question[0].Name)

	require.Len(t, resp.Answer, 1)
	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, net.IPv4(127, 0, 0, 1).To4(), a.A)
	assert.Equal(t, uint32(60), a.Hdr.Ttl)

	require.Len(t, logs.msgs, 1)
	assert.Equal(t, "app.local.test", logs.msgs[0].QueryName)
	assert.Equal(t, "A", logs.msgs[0].QType)
	assert.Equal(t, model.ResultLocal, logs.msgs[0].ResultType)
	assert.GreaterOrEqual(t, logs.msgs[0].DurationMs, int64(0))
}

func TestWildcardMatchBeatsForwarding(t *testing.T) {
	forward := &stubForwarder{configured: true, reply: []byte{0x01}}
	h, logs := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "%.dev.test", RecordType: "A", Content: "10.0.0.1", TTL: 300, Active: true},
	}, forward)

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0001, "api.dev.test", dns.TypeA)))

	require.Len(t, resp.Answer, 1)
	a := resp.Answer[0].(*dns.A)
	assert.Equal(t, net.IPv4(10, 0, 0, 1).To4(), a.A)
	assert.Equal(t, uint32(300), a.Hdr.Ttl)

	assert.Equal(t, 0, forward.calls)
	require.Len(t, logs.msgs, 1)
	assert.Equal(t, model.ResultLocal, logs.msgs[0].ResultType)
}

func TestExactBeatsWildcard(t *testing.T) {
	h, _ := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "%.dev.test", RecordType: "A", Content: "10.0.0.1", TTL: 60, Active: true},
		{ID: 2, DomainPattern: "api.dev.test", RecordType: "A", Content: "10.0.0.2", TTL: 60, Active: true},
	}, &stubForwarder{})

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0002, "api.dev.test", dns.TypeA)))

	require.Len(t, resp.Answer, 1)
	assert.Equal(t, net.IPv4(10, 0, 0, 2).To4(), resp.Answer[0].(*dns.A).A)
}

func TestQueryNameIsCaseFolded(t *testing.T) {
	h, logs := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "app.local.test", RecordType: "A", Content: "127.0.0.1", TTL: 60, Active: true},
	}, &stubForwarder{})

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0003, "APP.Local.TEST", dns.TypeA)))

	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "app.local.test", logs.msgs[0].QueryName)
}

func TestAAAAAnswer(t *testing.T) {
	h, _ := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "app.local.test", RecordType: "AAAA", Content: "::1", TTL: 60, Active: true},
	}, &stubForwarder{})

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0004, "app.local.test", dns.TypeAAAA)))

	require.Len(t, resp.Answer, 1)
	aaaa, ok := resp.Answer[0].(*dns.AAAA)
	require.True(t, ok)
	assert.Equal(t, net.ParseIP("::1").To16(), aaaa.AAAA)
}

func TestCNAMEAnswer(t *testing.T) {
	h, _ := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "alias.local.test", RecordType: "CNAME", Content: "target.local.test", TTL: 120, Active: true},
	}, &stubForwarder{})

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0005, "alias.local.test", dns.TypeCNAME)))

	require.Len(t, resp.Answer, 1)
	cname, ok := resp.Answer[0].(*dns.CNAME)
	require.True(t, ok)
	assert.Equal(t, "target.local.test.", cname.Target)
}

func TestTTLZeroIsEchoed(t *testing.T) {
	h, _ := newTestHandler(t, []db.Record{
		{ID: 1, DomainPattern: "app.local.test", RecordType: "A", Content: "127.0.0.1", TTL: 0, Active: true},
	}, &stubForwarder{})

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0006, "app.local.test", dns.TypeA)))

	require.Len(t, resp.Answer, 1)
	assert.Equal(t, uint32(0), resp.Answer[0].Header().Ttl)
}

func TestForwardOnMiss(t *testing.T) {
	canned := make([]byte, 40)
	canned[0] = 0x12
	canned[1] = 0x34
	forward := &stubForwarder{configured: true, reply: canned}
	h, logs := newTestHandler(t, nil, forward)

	resp := h.HandlePacket(packQuery(t, 0x1234, "google.com", dns.TypeA))

	// The upstream datagram comes back byte-for-byte.
	assert.Equal(t, canned, resp)
	assert.Equal(t, 1, forward.calls)

	require.Len(t, logs.msgs, 1)
	assert.Equal(t, model.ResultForwarded, logs.msgs[0].ResultType)
}

func TestUpstreamFailureYieldsNXDomain(t *testing.T) {
	forward := &stubForwarder{configured: true, err: errors.New("both upstreams timed out")}
	h, logs := newTestHandler(t, nil, forward)

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0007, "google.com", dns.TypeA)))

	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	require.Len(t, resp.Question, 1)
	assert.Equal(t, "google.com.", resp.Question[0].Name)
	assert.Empty(t, resp.Answer)

	require.Len(t, logs.msgs, 1)
	assert.Equal(t, model.ResultNXDomain, logs.msgs[0].ResultType)
}

func TestNoUpstreamYieldsNXDomain(t *testing.T) {
	forward := &stubForwarder{}
	h, logs := newTestHandler(t, nil, forward)

	resp := unpack(t, h.HandlePacket(packQuery(t, 0x0008, "google.com", dns.TypeA)))

	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.Equal(t, 0, forward.calls)
	assert.Equal(t, model.ResultNXDomain, logs.msgs[0].ResultType)
}

func TestMalformedDatagramDroppedSilently(t *testing.T) {
	h, logs := newTestHandler(t, nil, &stubForwarder{})

	resp := h.HandlePacket([]byte{0x01, 0x02, 0x03})

	assert.Nil(t, resp)
	require.Len(t, logs.msgs, 1)
	assert.Equal(t, model.ResultError, logs.msgs[0].ResultType)
}

func TestQueryWithoutQuestionDropped(t *testing.T) {
	h, logs := newTestHandler(t, nil, &stubForwarder{})

	empty := new(dns.Msg)
	empty.Id = 0x0009
	buf, err := empty.Pack()
	require.NoError(t, err)

	resp := h.HandlePacket(buf)

	assert.Nil(t, resp)
	require.Len(t, logs.msgs, 1)
	assert.Equal(t, model.ResultError, logs.msgs[0].ResultType)
}

func TestResponseDatagramDropped(t *testing.T) {
	h, logs := newTestHandler(t, nil, &stubForwarder{})

	reply := new(dns.Msg)
	reply.SetQuestion("app.local.test.", dns.TypeA)
	reply.Response = true
	buf, err := reply.Pack()
	require.NoError(t, err)

	assert.Nil(t, h.HandlePacket(buf))
	assert.Equal(t, model.ResultError, logs.msgs[0].ResultType)
}
