package discovery

import (
	"context"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"peerlink/presence"
)

func TestStartAdvertiserBuildsExpectedTXTRecords(t *testing.T) {
	var (
		gotInstance string
		gotService  string
		gotDomain   string
		gotPort     int
		gotTXT      []string
	)

	cfg := Config{
		ServerID: "server-123",
		Port:     8080,
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			gotInstance = instance
			gotService = service
			gotDomain = domain
			gotPort = port
			gotTXT = append([]string(nil), text...)
			return nil, nil
		},
	}

	advertiser, err := StartAdvertiser(cfg)
	if err != nil {
		t.Fatalf("StartAdvertiser failed: %v", err)
	}
	if advertiser == nil {
		t.Fatalf("expected advertiser instance")
	}
	advertiser.Stop()

	if gotInstance != "peerlink-server-123" {
		t.Fatalf("unexpected instance name: %q", gotInstance)
	}
	if gotService != DefaultService {
		t.Fatalf("unexpected service: %q", gotService)
	}
	if gotDomain != DefaultDomain {
		t.Fatalf("unexpected domain: %q", gotDomain)
	}
	if gotPort != 8080 {
		t.Fatalf("unexpected port: %d", gotPort)
	}
	for _, want := range []string{"server_id=server-123", "version=1"} {
		if !slices.Contains(gotTXT, want) {
			t.Fatalf("missing TXT record %q in %v", want, gotTXT)
		}
	}
}

func TestStartAdvertiserValidatesConfig(t *testing.T) {
	register := func(string, string, string, int, []string, []net.Interface) (*zeroconf.Server, error) {
		t.Fatalf("register must not be called for invalid config")
		return nil, nil
	}

	if _, err := StartAdvertiser(Config{Port: 8080, registerFn: register}); err == nil {
		t.Fatalf("expected missing server ID to fail")
	}
	if _, err := StartAdvertiser(Config{ServerID: "server", registerFn: register}); err == nil {
		t.Fatalf("expected missing port to fail")
	}
}

func TestServiceStartFeedsRegistry(t *testing.T) {
	registry := presence.NewRegistry()
	cfg := Config{
		ServerID:        "server",
		Port:            8080,
		RefreshInterval: time.Hour,
		ScanTimeout:     30 * time.Millisecond,
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			return nil, nil
		},
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			entries <- testServiceEntry("device-1", "chat", "10.0.0.2")
			<-ctx.Done()
			return nil
		},
	}

	service, err := Start(cfg, registry)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		peer, err := registry.GetPeer(PeerIDPrefix + "device-1")
		return err == nil && peer.App == "chat" && peer.Source == presence.SourceMDNS
	})

	service.Stop()
	service.Stop()
}
