package dns

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/qbsru/widgetdomains/internal/port/dnsresolver"
)

// startServer runs an in-process DNS server on a random UDP port.
func startServer(t *testing.T, handler mdns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func zoneHandler(w mdns.ResponseWriter, req *mdns.Msg) {
	resp := new(mdns.Msg)
	resp.SetReply(req)

	switch req.Question[0].Name {
	case "careers.acme.com.":
		resp.Answer = append(resp.Answer,
			mustRR("careers.acme.com. 300 IN CNAME Widget.HH.QBS.RU."),
			mustRR("Widget.HH.QBS.RU. 300 IN CNAME edge.qbs.ru."))
	case "jobs.acme.com.":
		resp.Answer = append(resp.Answer, mustRR("jobs.acme.com. 300 IN CNAME other.example.net."))
	case "nodata.acme.com.":
		// NOERROR with an empty answer.
	case "broken.acme.com.":
		resp.Rcode = mdns.RcodeServerFailure
	default:
		resp.Rcode = mdns.RcodeNameError
	}
	_ = w.WriteMsg(resp)
}

func mustRR(s string) mdns.RR {
	rr, err := mdns.NewRR(s)
	if err != nil {
		panic(err)
	}
	return rr
}

func TestResolver_LookupCNAME(t *testing.T) {
	addr := startServer(t, zoneHandler)
	r := New([]string{addr}, time.Second)
	ctx := context.Background()

	got, err := r.LookupCNAME(ctx, "careers.acme.com")
	if err != nil {
		t.Fatalf("LookupCNAME: %v", err)
	}
	if len(got) != 2 || got[0] != "Widget.HH.QBS.RU" || got[1] != "edge.qbs.ru" {
		t.Fatalf("unexpected chain %v", got)
	}

	got, err = r.LookupCNAME(ctx, "jobs.acme.com")
	if err != nil {
		t.Fatalf("LookupCNAME: %v", err)
	}
	if got[0] != "other.example.net" {
		t.Fatalf("unexpected target %v", got)
	}
}

func TestResolver_Classification(t *testing.T) {
	addr := startServer(t, zoneHandler)
	r := New([]string{addr}, time.Second)

	tests := []struct {
		host string
		want error
	}{
		{"missing.acme.com", dnsresolver.ErrNoRecords},
		{"nodata.acme.com", dnsresolver.ErrNoRecords},
		{"broken.acme.com", dnsresolver.ErrTemporary},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			_, err := r.LookupCNAME(context.Background(), tt.host)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolver_TimeoutIsTemporary(t *testing.T) {
	// A socket that never answers.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	r := New([]string{pc.LocalAddr().String()}, 100*time.Millisecond)
	_, err = r.LookupCNAME(context.Background(), "careers.acme.com")
	if !errors.Is(err, dnsresolver.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestResolver_FallsThroughFailingServer(t *testing.T) {
	failing := startServer(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		resp := new(mdns.Msg)
		resp.SetRcode(req, mdns.RcodeRefused)
		_ = w.WriteMsg(resp)
	})
	good := startServer(t, zoneHandler)

	r := New([]string{failing, good}, time.Second)
	got, err := r.LookupCNAME(context.Background(), "jobs.acme.com")
	if err != nil {
		t.Fatalf("expected second server to answer, got %v", err)
	}
	if got[0] != "other.example.net" {
		t.Fatalf("unexpected target %v", got)
	}
}

func TestSystemNameservers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 10.0.0.2\nnameserver 10.0.0.3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := SystemNameservers(path)
	if len(got) != 2 || got[0] != "10.0.0.2:53" {
		t.Fatalf("unexpected nameservers %v", got)
	}

	if got := SystemNameservers(filepath.Join(dir, "absent")); len(got) != len(FallbackNameservers) {
		t.Fatalf("expected fallback nameservers, got %v", got)
	}
}
