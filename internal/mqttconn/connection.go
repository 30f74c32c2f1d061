package mqttconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/mqtt-rpc-server/internal/buildinfo"
	"github.com/nugget/mqtt-rpc-server/internal/config"
	"github.com/nugget/mqtt-rpc-server/internal/rpcserver"
)

// Connection is a single MQTT5 broker connection shared by one or more
// RpcServer instances. It owns the serialized dispatch goroutine every
// attached instance's Dispatch calls run on, and broadcasts inbound
// PUBLISHes and connection-lifecycle events to all of them.
type Connection struct {
	cfg    config.BrokerConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager

	events chan func()

	mu      sync.Mutex
	servers []*rpcserver.RpcServer

	subCounter atomic.Uint32
}

// NewConnection builds an unconnected Connection. Call Start to dial
// the broker and begin the dispatch loop.
func NewConnection(cfg config.BrokerConfig, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		cfg:    cfg,
		logger: logger,
		events: make(chan func(), 256),
	}
}

// Start dials the broker and runs the dispatch loop until ctx is
// cancelled, so it only returns once ctx is done (or on a dial setup
// error). Before entering the loop it waits up to 30 seconds for the
// initial connection; autopaho continues retrying in the background
// after that regardless of outcome.
func (c *Connection) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse broker url: %w", err)
	}

	clientID := c.cfg.ClientID
	if clientID == "" {
		clientID = "rpc-server"
	}
	keepAlive := c.cfg.KeepAliveSeconds
	if keepAlive <= 0 {
		keepAlive = 30
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       uint16(keepAlive),
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		// autopaho calls this on every connect, including reconnects
		// after a session loss; broadcasting ConnectRspEvent on each
		// is harmless since a waiting instance swallows it and a
		// faulted one only rejects it (logged by broadcast). The
		// re-subscription that actually matters after a reconnect is
		// driven separately, by connwatch's OnReady transition, since
		// that is where "was this a fresh start or a recovery" is
		// known.
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			c.logger.Info("mqttconn connected", "broker", c.cfg.URL)
			c.post(func() {
				c.broadcast(rpcserver.ConnectRspEvent{})
			})
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqttconn connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
		// Stamp every CONNECT with a User-Agent property so broker-side
		// logs and admin tools can tell this policy's connections apart
		// from other clients on the same broker.
		ConnectPacketBuilder: func(pkt *paho.Connect, _ *url.URL) (*paho.Connect, error) {
			if pkt.Properties == nil {
				pkt.Properties = &paho.ConnectProperties{}
			}
			pkt.Properties.User = append(pkt.Properties.User, paho.UserProperty{
				Key:   "User-Agent",
				Value: buildinfo.UserAgent(),
			})
			return pkt, nil
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttconn dial: %w", err)
	}
	c.cm = cm
	cm.AddOnPublishReceived(c.onPublishReceived)

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("mqttconn initial connect timed out, retrying in background", "error", err)
	}

	c.dispatchLoop(ctx)
	return nil
}

// Stop disconnects from the broker.
func (c *Connection) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	return c.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires. Suitable as a connwatch.ProbeFunc.
func (c *Connection) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return fmt.Errorf("mqttconn: not started")
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *Connection) onPublishReceived(pr autopaho.PublishReceived) (bool, error) {
	evt := rpcserver.PubRecvIndEvent{
		Topic:      pr.Packet.Topic,
		Payload:    pr.Packet.Payload,
		Properties: newInboundPropertyBag(pr.Packet.Properties),
	}
	c.post(func() { c.broadcast(evt) })
	return true, nil
}

// broadcast delivers ev to every attached instance. Must run on the
// dispatch goroutine.
func (c *Connection) broadcast(ev rpcserver.Event) {
	c.mu.Lock()
	servers := make([]*rpcserver.RpcServer, len(c.servers))
	copy(servers, c.servers)
	c.mu.Unlock()

	for _, s := range servers {
		if err := s.Dispatch(ev); err != nil {
			c.logger.Warn("mqttconn dispatch error", "topic", s.SubscriptionTopic(), "error", err)
		}
	}
}

// registerServer attaches server to receive broadcast events.
func (c *Connection) registerServer(s *rpcserver.RpcServer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = append(c.servers, s)
}

// post schedules fn to run on the dispatch goroutine, preserving the
// single-threaded cooperative model the HFSM assumes.
func (c *Connection) post(fn func()) {
	c.events <- fn
}

func (c *Connection) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.events:
			fn()
		}
	}
}

// nextSubscriptionID hands out locally-scoped correlation ids for
// in-flight SUBSCRIBEs. These are internal bookkeeping only: the MQTT5
// wire protocol's own packet-id correlation is already handled by
// paho.golang, so this counter exists purely so RpcServer can tell its
// own pending subscription apart from another instance's.
func (c *Connection) nextSubscriptionID() uint16 {
	return uint16(c.subCounter.Add(1))
}
