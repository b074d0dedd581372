package checker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupRecorder struct {
	types []string
}

func (l *lookupRecorder) ObserveLookup(recordType string, elapsed time.Duration, err error) {
	l.types = append(l.types, recordType)
}

// startTestServer serves a tiny fixed zone on a local UDP port.
func startTestServer(t *testing.T) string {
	t.Helper()

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]

		switch {
		case q.Name == "example.com." && q.Qtype == dns.TypeNS:
			m.Answer = append(m.Answer,
				&dns.NS{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 60}, Ns: "Ada.NS.Cloudflare.com."})
		case q.Name == "example.com." && q.Qtype == dns.TypeMX:
			m.Answer = append(m.Answer,
				&dns.MX{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 60}, Preference: 10, Mx: "inbound-smtp.us-east-1.amazonaws.com."})
		case q.Name == "_amazonses.example.com." && q.Qtype == dns.TypeTXT:
			m.Answer = append(m.Answer,
				&dns.TXT{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60}, Txt: []string{"part-one", "part-two"}})
		case q.Name == "broken.example.com.":
			m.Rcode = dns.RcodeServerFailure
		case q.Name == "example.com.":
			// exists, no data of the requested type
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSResolverLookups(t *testing.T) {
	addr := startTestServer(t)
	observer := &lookupRecorder{}
	r := NewDNSResolver(ResolverConfig{Nameserver: addr, Timeout: 2 * time.Second}, observer)
	ctx := context.Background()

	ns, err := r.LookupNS(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"ada.ns.cloudflare.com"}, ns)

	mx, err := r.LookupMX(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, mx, 1)
	assert.Equal(t, "inbound-smtp.us-east-1.amazonaws.com.", mx[0].Host)
	assert.Equal(t, uint16(10), mx[0].Pref)

	txt, err := r.LookupTXT(ctx, "_amazonses.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"part-onepart-two"}, txt)

	assert.Equal(t, []string{"NS", "MX", "TXT"}, observer.types)
}

func TestDNSResolverTypedErrors(t *testing.T) {
	addr := startTestServer(t)
	r := NewDNSResolver(ResolverConfig{Nameserver: addr, Timeout: 2 * time.Second}, nil)
	ctx := context.Background()

	_, err := r.LookupMX(ctx, "missing.example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.LookupTXT(ctx, "example.com")
	assert.ErrorIs(t, err, ErrNoData)
	assert.True(t, IsNotFound(err))

	_, err = r.LookupNS(ctx, "broken.example.com")
	assert.ErrorIs(t, err, ErrServFail)
	assert.False(t, IsNotFound(err))
}

// startTruncatingServer answers the apex TXT query with TC set and no
// answers over UDP, and with the full record set over TCP on the same port.
func startTruncatingServer(t *testing.T) string {
	t.Helper()

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		if w.RemoteAddr().Network() == "udp" {
			m.Truncated = true
			_ = w.WriteMsg(m)
			return
		}
		q := req.Question[0]
		for i := 0; i < 9; i++ {
			value := fmt.Sprintf("site-verification=%s", strings.Repeat(strconv.Itoa(i), 60))
			if i == 0 {
				value = "v=spf1 include:amazonses.com ~all"
			}
			m.Answer = append(m.Answer,
				&dns.TXT{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60}, Txt: []string{value}})
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	ln, err := net.Listen("tcp", pc.LocalAddr().String())
	require.NoError(t, err)

	for _, server := range []*dns.Server{
		{PacketConn: pc, Handler: handler},
		{Listener: ln, Handler: handler},
	} {
		started := make(chan struct{})
		server.NotifyStartedFunc = func() { close(started) }
		go func() { _ = server.ActivateAndServe() }()
		<-started
		t.Cleanup(func() { _ = server.Shutdown() })
	}

	return pc.LocalAddr().String()
}

func TestDNSResolverRetriesTruncatedOverTCP(t *testing.T) {
	addr := startTruncatingServer(t)
	r := NewDNSResolver(ResolverConfig{Nameserver: addr, Timeout: 2 * time.Second}, nil)

	txt, err := r.LookupTXT(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Len(t, txt, 9)
	assert.Contains(t, txt, "v=spf1 include:amazonses.com ~all")
}
