package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	quic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/sirupsen/logrus"
)

// LinkKind distinguishes the off-mesh physical transports a node may carry
// in addition to QUIC, per spec.md §4.5's link-driver model. Only QUIC is
// wired to libp2p in this repository; the others are modeled as swappable
// LinkDriver implementations so hardware-specific drivers can be supplied
// by deployment-specific builds without changing the transport manager.
type LinkKind uint8

const (
	LinkQUIC LinkKind = iota
	LinkWiFiDirect
	LinkBLE
	LinkLoRaWAN
	LinkSatellite
)

// LinkDriver is the interface every physical transport implements. QUIC is
// the only driver this repository constructs; the others exist so a
// deployment can plug in hardware-specific implementations without
// touching TransportManager (spec.md §9's "no downgrade" decision — QUIC
// stays the sole authenticated control-plane transport even when other
// links are present for best-effort mesh relay).
type LinkDriver interface {
	Kind() LinkKind
	Dial(ctx context.Context, addr string) (network.Stream, error)
	Close() error
}

// ErrNoDowngrade is returned whenever transport setup would otherwise fall
// back to an unauthenticated TCP/UDP path. This repository deliberately
// removed that fallback (SPEC_FULL.md Open Question 1); the error exists so
// callers that used to retry on a downgrade path get an explicit, loud
// failure instead of a silent weaker connection.
var ErrNoDowngrade = fmt.Errorf("core: transport downgrade to non-QUIC control plane is not supported")

// TransportManager owns the libp2p host and enforces QUIC as the only
// control-plane transport. Grounded on teacher `core/network.go`, which
// constructs a libp2p host with a configurable transport set; this
// generalizes that to a single hard-coded QUIC-only `libp2p.Config` and
// removes the teacher's TCP fallback entirely, per Open Question 1.
type TransportManager struct {
	host   host.Host
	log    *logrus.Logger
	links  map[LinkKind]LinkDriver
	mu     sync.RWMutex
}

// NewTransportManager constructs a libp2p host bound to listenAddrs using
// only the QUIC transport (no TCP, no WebSocket, no WebRTC).
func NewTransportManager(ctx context.Context, identity *PrivateKey, listenAddrs []string, log *logrus.Logger) (*TransportManager, error) {
	if log == nil {
		log = discardLogger()
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.Transport(quic.NewTransport),
		libp2p.DisableRelay(),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("core: libp2p host: %w", err)
	}

	log.WithFields(logrus.Fields{
		"peer_id": h.ID().String(),
		"addrs":   h.Addrs(),
	}).Info("transport manager: quic host started")

	return &TransportManager{
		host:  h,
		log:   log,
		links: make(map[LinkKind]LinkDriver),
	}, nil
}

// RegisterLink attaches a non-QUIC LinkDriver for best-effort mesh relay.
// These links never carry an unauthenticated control-plane session — they
// carry already-established sessions whose keys were derived over QUIC.
func (tm *TransportManager) RegisterLink(d LinkDriver) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.links[d.Kind()] = d
}

// Host returns the underlying libp2p host, e.g. for wiring pubsub.
func (tm *TransportManager) Host() host.Host { return tm.host }

// Connect dials a peer over QUIC through the libp2p host when kind is
// LinkQUIC. Any other kind dials through the LinkDriver registered for it,
// and returns ErrNoDowngrade when no driver is registered for that kind.
func (tm *TransportManager) Connect(ctx context.Context, info peer.AddrInfo, kind LinkKind) error {
	if kind != LinkQUIC {
		tm.mu.RLock()
		d, ok := tm.links[kind]
		tm.mu.RUnlock()
		if !ok {
			return ErrNoDowngrade
		}
		_, err := d.Dial(ctx, info.ID.String())
		return err
	}
	return tm.host.Connect(ctx, info)
}

// Close shuts down the host and every registered link driver.
func (tm *TransportManager) Close() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, d := range tm.links {
		_ = d.Close()
	}
	return tm.host.Close()
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// BootstrapDialTimeout is the time limit for an unauthenticated
// bootstrap_mode connection attempt (spec.md §4.5). Nothing in the package
// applies it; Connect runs under the caller's context deadline.
const BootstrapDialTimeout = 15 * time.Second
