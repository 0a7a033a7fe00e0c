package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/sirupsen/logrus"
)

// broadcastSeenWindow and perPeerForwardCap tune MeshRouter's dedup cache
// and forwarding-rate limiter (spec.md §4.5).
const (
	broadcastSeenWindow = 5 * time.Minute
	perPeerForwardCap   = 120
)

// Frame is the envelope every gossiped message travels in: an id for
// dedup, a topic, an AEAD-sealed payload, and the sender's NodeID (spec.md
// §4.4 "mesh frame"). The payload is opaque to the router — encryption and
// authentication live one layer up, in the handshake session that produced
// the key used to seal it.
type Frame struct {
	ID      [16]byte
	Topic   string
	Sender  NodeID
	Payload SealedBox
}

// MeshRouter wraps libp2p-pubsub to provide topic-based gossip broadcast
// across the mesh. Grounded on teacher `core/network.go`'s gossip broadcast
// loop, generalized from its single fixed topic to the spec's per-subsystem
// topic set (blocks, transactions, consensus votes, DHT announcements).
// Library: `github.com/libp2p/go-libp2p-pubsub`.
type MeshRouter struct {
	ps    *pubsub.PubSub
	log   *logrus.Logger
	mu    sync.Mutex
	subs  map[string]*pubsub.Subscription
	tops  map[string]*pubsub.Topic
	conns *ConnectionTable
}

// NewMeshRouter constructs a gossipsub router over an already-running
// libp2p host.
func NewMeshRouter(ctx context.Context, h host.Host, log *logrus.Logger) (*MeshRouter, error) {
	if log == nil {
		log = discardLogger()
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("core: gossipsub init: %w", err)
	}
	return &MeshRouter{
		ps:    ps,
		log:   log,
		subs:  make(map[string]*pubsub.Subscription),
		tops:  make(map[string]*pubsub.Topic),
		conns: NewConnectionTable(broadcastSeenWindow, perPeerForwardCap),
	}, nil
}

// Connections exposes the router's connection table, e.g. for components
// that need to record link-quality observations as they arrive.
func (mr *MeshRouter) Connections() *ConnectionTable { return mr.conns }

func (mr *MeshRouter) topic(name string) (*pubsub.Topic, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if t, ok := mr.tops[name]; ok {
		return t, nil
	}
	t, err := mr.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("core: join topic %s: %w", name, err)
	}
	mr.tops[name] = t
	return t, nil
}

// ErrDuplicateFrame is returned when Broadcast is asked to send a frame id
// already seen within the dedup window (spec.md §4.5).
var ErrDuplicateFrame = fmt.Errorf("core: duplicate broadcast frame suppressed")

// Broadcast publishes a Frame on its topic, suppressing ids already seen
// within the dedup window so duplicate gossip deliveries aren't re-relayed.
func (mr *MeshRouter) Broadcast(ctx context.Context, f *Frame) error {
	if mr.conns.SeenAndMark(f.ID, time.Now()) {
		return ErrDuplicateFrame
	}
	t, err := mr.topic(f.Topic)
	if err != nil {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("core: marshal frame: %w", err)
	}
	if err := t.Publish(ctx, b); err != nil {
		return fmt.Errorf("core: publish: %w", err)
	}
	return nil
}

// Subscribe registers handler for every Frame received on topic, running
// the receive loop in its own goroutine until ctx is canceled.
func (mr *MeshRouter) Subscribe(ctx context.Context, topicName string, handler func(*Frame)) error {
	t, err := mr.topic(topicName)
	if err != nil {
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("core: subscribe %s: %w", topicName, err)
	}

	mr.mu.Lock()
	mr.subs[topicName] = sub
	mr.mu.Unlock()

	go func() {
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				mr.log.WithError(err).WithField("topic", topicName).Debug("mesh router: subscription closed")
				return
			}
			var f Frame
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				mr.log.WithError(err).Warn("mesh router: malformed frame dropped")
				continue
			}
			if mr.conns.SeenAndMark(f.ID, time.Now()) {
				continue // already relayed this id, drop before handler
			}
			if !mr.conns.AllowForward(f.Sender, time.Now()) {
				mr.log.WithField("sender", f.Sender.String()).Debug("mesh router: per-peer forward cap exceeded")
				continue
			}
			handler(&f)
		}
	}()
	return nil
}

// Close tears down every open subscription and joined topic.
func (mr *MeshRouter) Close() {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	for _, s := range mr.subs {
		s.Cancel()
	}
	for _, t := range mr.tops {
		_ = t.Close()
	}
}

// Standard mesh topics (spec.md §4.4, §4.7, §4.9).
const (
	TopicBlocks       = "meshchain/blocks/v1"
	TopicTransactions = "meshchain/transactions/v1"
	TopicVotes        = "meshchain/consensus-votes/v1"
	TopicDHTAnnounce  = "meshchain/dht-announce/v1"
)
