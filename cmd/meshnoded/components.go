package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"meshchain/core"
	"meshchain/pkg/config"
)

// storeComponent adapts one of the node's durable goleveldb-backed stores
// (nonce cache, peer registry, DHT store) to core.Component so the
// orchestrator can open/close it in dependency order alongside the
// network-facing components that depend on it.
type storeComponent struct {
	name  string
	open  func() error
	close func() error
}

func (s *storeComponent) Name() string                 { return s.name }
func (s *storeComponent) Start(ctx context.Context) error { return s.open() }
func (s *storeComponent) Stop(ctx context.Context) error  { return s.close() }
func (s *storeComponent) Health() core.ComponentHealth {
	return core.ComponentHealth{Name: s.name, Healthy: true}
}

// transportComponent wires core.TransportManager into the orchestrator.
type transportComponent struct {
	cfg      *config.Config
	identity *core.PrivateKey
	log      *logrus.Logger
	tm       *core.TransportManager
}

func (t *transportComponent) Name() string { return "transport" }

func (t *transportComponent) Start(ctx context.Context) error {
	tm, err := core.NewTransportManager(ctx, t.identity, t.cfg.Network.ListenAddrs, t.log)
	if err != nil {
		return err
	}
	t.tm = tm
	return nil
}

func (t *transportComponent) Stop(ctx context.Context) error {
	if t.tm == nil {
		return nil
	}
	return t.tm.Close()
}

func (t *transportComponent) Health() core.ComponentHealth {
	return core.ComponentHealth{Name: "transport", Healthy: t.tm != nil}
}

// meshRouterComponent wires core.MeshRouter, depending on transport having
// already constructed a libp2p host.
type meshRouterComponent struct {
	transport *transportComponent
	log       *logrus.Logger
	router    *core.MeshRouter
}

func (m *meshRouterComponent) Name() string { return "mesh_router" }

func (m *meshRouterComponent) Start(ctx context.Context) error {
	if m.transport.tm == nil {
		return fmt.Errorf("mesh router: transport not started")
	}
	router, err := core.NewMeshRouter(ctx, m.transport.tm.Host(), m.log)
	if err != nil {
		return err
	}
	m.router = router
	return nil
}

func (m *meshRouterComponent) Stop(ctx context.Context) error {
	if m.router != nil {
		m.router.Close()
	}
	return nil
}

func (m *meshRouterComponent) Health() core.ComponentHealth {
	return core.ComponentHealth{Name: "mesh_router", Healthy: m.router != nil}
}

// registerComponents wires every orchestrated component in dependency
// order: durable stores first, then the transport manager, then the mesh
// router that rides on top of it.
func registerComponents(orch *core.Orchestrator, cfg *config.Config, identity *core.PrivateKey, log *logrus.Logger) {
	var nonces *core.NonceCache
	var peers *core.PeerRegistry
	var dht *core.DHTStore

	dataDir := cfg.Storage.DataDirectory
	if dataDir == "" {
		dataDir = "./data"
	}

	orch.Register(&storeComponent{
		name: "nonce_cache",
		open: func() (err error) {
			nonces, err = core.OpenNonceCache(filepath.Join(dataDir, "nonces"))
			return err
		},
		close: func() error {
			if nonces == nil {
				return nil
			}
			return nonces.Close()
		},
	})

	orch.Register(&storeComponent{
		name: "peer_registry",
		open: func() (err error) {
			peers, err = core.OpenPeerRegistry(filepath.Join(dataDir, "peers"))
			return err
		},
		close: func() error {
			if peers == nil {
				return nil
			}
			return peers.Close()
		},
	})

	orch.Register(&storeComponent{
		name: "dht_store",
		open: func() (err error) {
			dht, err = core.OpenDHTStore(filepath.Join(dataDir, "dht"))
			return err
		},
		close: func() error {
			if dht == nil {
				return nil
			}
			return dht.Close()
		},
	})

	transport := &transportComponent{cfg: cfg, identity: identity, log: log}
	orch.Register(transport, "nonce_cache", "peer_registry", "dht_store")

	router := &meshRouterComponent{transport: transport, log: log}
	orch.Register(router, "transport")
}
