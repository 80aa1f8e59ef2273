package discovery

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// EventPeerUpserted is emitted when a device appears or its metadata changes.
	EventPeerUpserted EventType = "peer_upserted"
	// EventPeerRemoved is emitted when a previously seen device disappears.
	EventPeerRemoved EventType = "peer_removed"
)

var errScannerStopped = errors.New("peer scanner is stopped")

// EventType identifies discovery updates.
type EventType string

// Event carries one discovery update.
type Event struct {
	Type EventType
	Peer DiscoveredPeer
}

// DiscoveredPeer is a LAN device advertising the peer service.
type DiscoveredPeer struct {
	DeviceID  string
	App       string
	Name      string
	Version   int
	HostName  string
	Port      int
	Addresses []string
	LastSeen  time.Time
}

type scanRequest struct {
	ctx    context.Context
	result chan error
}

// PeerScanner keeps a snapshot of the devices answering a browse of the peer
// service, rescanning on a timer and on demand.
type PeerScanner struct {
	cfg    Config
	browse browseFunc

	mu      sync.RWMutex
	devices map[string]DiscoveredPeer

	events   chan Event
	requests chan scanRequest

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPeerScanner creates a scanner with config defaults applied.
func NewPeerScanner(config Config) (*PeerScanner, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browse = resolver.Browse
	}

	return &PeerScanner{
		cfg:      cfg,
		browse:   browse,
		devices:  make(map[string]DiscoveredPeer),
		events:   make(chan Event, 128),
		requests: make(chan scanRequest),
	}, nil
}

// Start begins background scanning.
func (s *PeerScanner) Start() error {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.wg.Add(1)
		go s.run()
	})
	return nil
}

// Stop stops background scanning and closes the event channel.
func (s *PeerScanner) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		close(s.events)
	})
}

// Events provides asynchronous discovery updates.
func (s *PeerScanner) Events() <-chan Event {
	return s.events
}

// Refresh runs a scan now and waits for it to finish.
func (s *PeerScanner) Refresh(ctx context.Context) error {
	if s.ctx == nil {
		return errors.New("peer scanner is not started")
	}

	req := scanRequest{ctx: ctx, result: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errScannerStopped
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errScannerStopped
	}
}

// ListPeers returns the devices seen in the last scan, ordered by app then ID.
func (s *PeerScanner) ListPeers() []DiscoveredPeer {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.devices))
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b DiscoveredPeer) int {
		return cmp.Or(cmp.Compare(a.App, b.App), cmp.Compare(a.DeviceID, b.DeviceID))
	})
	return out
}

func (s *PeerScanner) run() {
	defer s.wg.Done()

	s.scanAndApply(s.ctx)

	timer := time.NewTimer(s.cfg.RefreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if err := s.scanAndApply(s.ctx); err != nil {
				log.Debugw("peer scan failed", "service", s.cfg.PeerService, "err", err)
			}
			timer.Reset(s.cfg.RefreshInterval)
		case req := <-s.requests:
			req.result <- s.scanAndApply(req.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// scanAndApply replaces the snapshot with the outcome of one browse window.
// An interrupted window leaves the snapshot untouched.
func (s *PeerScanner) scanAndApply(ctx context.Context) error {
	found, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil || s.ctx.Err() != nil {
		return nil
	}

	s.mu.Lock()
	previous := s.devices
	s.devices = found
	s.mu.Unlock()

	for _, event := range diffSnapshots(previous, found) {
		s.emit(event)
	}
	return nil
}

func (s *PeerScanner) scan(ctx context.Context) (map[string]DiscoveredPeer, error) {
	window, cancel := context.WithTimeout(s.ctx, s.cfg.ScanTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	browsed := make(chan error, 1)
	go func() {
		browsed <- s.browse(window, s.cfg.PeerService, s.cfg.Domain, entries)
	}()

	found := make(map[string]DiscoveredPeer)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if entry == nil {
				continue
			}
			if peer, ok := parseEntry(entry, s.cfg.ServerID); ok {
				peer.LastSeen = time.Now()
				found[peer.DeviceID] = peer
			}
		case err := <-browsed:
			browsed = nil
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				return nil, err
			}
		case <-window.Done():
			return found, nil
		}
	}
}

func (s *PeerScanner) emit(event Event) {
	select {
	case s.events <- event:
	default:
		log.Warnw("discovery event dropped", "type", event.Type, "device", event.Peer.DeviceID)
	}
}

// diffSnapshots lists upserts for new or changed devices followed by removals,
// each ordered by device ID.
func diffSnapshots(previous, next map[string]DiscoveredPeer) []Event {
	var events []Event
	for _, id := range slices.Sorted(maps.Keys(next)) {
		if old, ok := previous[id]; !ok || !sameDevice(old, next[id]) {
			events = append(events, Event{Type: EventPeerUpserted, Peer: next[id]})
		}
	}
	for _, id := range slices.Sorted(maps.Keys(previous)) {
		if _, ok := next[id]; !ok {
			events = append(events, Event{Type: EventPeerRemoved, Peer: previous[id]})
		}
	}
	return events
}

// sameDevice ignores LastSeen.
func sameDevice(a, b DiscoveredPeer) bool {
	return a.DeviceID == b.DeviceID &&
		a.App == b.App &&
		a.Name == b.Name &&
		a.Version == b.Version &&
		a.HostName == b.HostName &&
		a.Port == b.Port &&
		slices.Equal(a.Addresses, b.Addresses)
}

// parseEntry accepts entries carrying device_id and app TXT records, except
// the server's own.
func parseEntry(entry *zeroconf.ServiceEntry, serverID string) (DiscoveredPeer, bool) {
	txt := parseTXT(entry.Text)
	peer := DiscoveredPeer{
		DeviceID: txt["device_id"],
		App:      txt["app"],
		Name:     strings.TrimSpace(entry.Instance),
		HostName: entry.HostName,
		Port:     entry.Port,
	}
	if peer.DeviceID == "" || peer.App == "" || peer.DeviceID == serverID {
		return DiscoveredPeer{}, false
	}
	if peer.Name == "" {
		peer.Name = peer.DeviceID
	}
	if version, err := strconv.Atoi(txt["version"]); err == nil {
		peer.Version = version
	}

	for _, ip := range slices.Concat(entry.AddrIPv4, entry.AddrIPv6) {
		if ip != nil {
			peer.Addresses = append(peer.Addresses, ip.String())
		}
	}
	slices.Sort(peer.Addresses)
	peer.Addresses = slices.Compact(peer.Addresses)

	return peer, true
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
