// Package discovery advertises the server on the LAN and turns devices found
// over mDNS into online peers.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peerlink/discovery")

const (
	// DefaultService is the service the server advertises.
	DefaultService = "_peerlink._tcp"
	// DefaultPeerService is the service LAN devices advertise.
	DefaultPeerService = "_peerlink-peer._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultRefreshInterval is the background peer discovery interval.
	DefaultRefreshInterval = 10 * time.Second
	// DefaultScanTimeout bounds each discovery scan.
	DefaultScanTimeout = 3 * time.Second
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls mDNS advertisement and scanning.
type Config struct {
	Service         string
	PeerService     string
	Domain          string
	Version         int
	RefreshInterval time.Duration
	ScanTimeout     time.Duration

	ServerID     string
	InstanceName string
	Port         int

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.PeerService == "" {
		out.PeerService = DefaultPeerService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.RefreshInterval <= 0 {
		out.RefreshInterval = DefaultRefreshInterval
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.InstanceName == "" {
		out.InstanceName = "peerlink-" + out.ServerID
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validateForAdvertise() error {
	if strings.TrimSpace(c.ServerID) == "" {
		return errors.New("server ID is required")
	}
	if c.Port <= 0 {
		return errors.New("advertised port must be > 0")
	}
	return nil
}

// Advertiser announces the server over mDNS.
type Advertiser struct {
	server *zeroconf.Server
}

// StartAdvertiser registers the server's mDNS service.
func StartAdvertiser(config Config) (*Advertiser, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForAdvertise(); err != nil {
		return nil, err
	}

	txt := []string{
		"server_id=" + cfg.ServerID,
		"version=" + strconv.Itoa(cfg.Version),
	}

	server, err := cfg.registerFn(cfg.InstanceName, cfg.Service, cfg.Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	log.Infow("advertising server", "service", cfg.Service, "instance", cfg.InstanceName, "port", cfg.Port)
	return &Advertiser{server: server}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Service coordinates advertisement, scanning and the registry bridge.
type Service struct {
	Advertiser *Advertiser
	Scanner    *PeerScanner
	Bridge     *Bridge
}

// Start advertises the server and feeds discovered devices into registry.
func Start(config Config, registry Registry) (*Service, error) {
	cfg := config.withDefaults()

	advertiser, err := StartAdvertiser(cfg)
	if err != nil {
		return nil, err
	}

	scanner, err := NewPeerScanner(cfg)
	if err != nil {
		advertiser.Stop()
		return nil, err
	}
	if err := scanner.Start(); err != nil {
		advertiser.Stop()
		return nil, err
	}

	bridge := NewBridge(registry, scanner.Events())
	bridge.Start()

	return &Service{
		Advertiser: advertiser,
		Scanner:    scanner,
		Bridge:     bridge,
	}, nil
}

// Stop stops scanning, drains the bridge and withdraws the advertisement.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	if s.Scanner != nil {
		s.Scanner.Stop()
	}
	if s.Bridge != nil {
		s.Bridge.Wait()
	}
	if s.Advertiser != nil {
		s.Advertiser.Stop()
	}
}
