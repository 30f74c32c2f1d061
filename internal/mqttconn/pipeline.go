package mqttconn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/mqtt-rpc-server/internal/rpcserver"
)

// ApplicationHandler executes one parsed command request and returns
// the result to publish back. It runs on its own goroutine, separate
// from the Connection's dispatch loop, so it may block. The returned
// result (if non-nil and err is nil) is posted back through
// RpcServer.ExecutionFinish — the one thread-safe, cross-thread entry
// point the HFSM core exposes.
type ApplicationHandler func(ctx context.Context, req rpcserver.CommandRequest) (*rpcserver.ExecutionResult, error)

// Pipeline adapts one RpcServer instance's view of a Connection to the
// rpcserver.Pipeline interface. Construct with NewPipeline, pass it to
// rpcserver.Init, then call Bind with the resulting *RpcServer before
// calling Register — StartTimer and SendSubscribe need to route their
// eventual TimeoutEvent / SubAckRspEvent back to that specific
// instance.
type Pipeline struct {
	conn    *Connection
	handler ApplicationHandler
	logger  *slog.Logger
	server  *rpcserver.RpcServer
}

// NewPipeline returns a Pipeline bound to conn. handler may be nil for
// an instance that never expects to receive requests (not useful in
// practice, but Init does not require one up front).
func NewPipeline(conn *Connection, handler ApplicationHandler, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{conn: conn, handler: handler, logger: logger}
}

// Bind completes two-phase construction: it records the RpcServer this
// Pipeline feeds events back to and registers it with the Connection's
// broadcast list. Call once, immediately after rpcserver.Init returns.
func (p *Pipeline) Bind(server *rpcserver.RpcServer) {
	p.server = server
	p.conn.registerServer(server)
}

// timerHandle wraps a *time.Timer so it satisfies rpcserver.Timer and
// can be compared by identity against the timer a TimeoutEvent names.
type timerHandle struct {
	timer *time.Timer
}

func (t *timerHandle) Stop() {
	t.timer.Stop()
}

func (p *Pipeline) StartTimer(d time.Duration) rpcserver.Timer {
	h := &timerHandle{}
	h.timer = time.AfterFunc(d, func() {
		p.conn.post(func() {
			if p.server == nil {
				return
			}
			if err := p.server.Dispatch(rpcserver.TimeoutEvent{Timer: h}); err != nil {
				p.logger.Warn("mqttconn timeout dispatch failed", "error", err)
			}
		})
	})
	return h
}

func (p *Pipeline) SendSubscribe(topicFilter string, qos byte) (uint16, error) {
	id := p.conn.nextSubscriptionID()

	go func() {
		_, err := p.conn.cm.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: topicFilter, QoS: qos},
			},
		})

		p.conn.post(func() {
			if p.server == nil {
				return
			}
			if err != nil {
				p.logger.Error("mqttconn subscribe failed", "topic", topicFilter, "error", err)
				if derr := p.server.Dispatch(rpcserver.ErrorEvent{Err: err}); derr != nil {
					p.logger.Error("mqttconn error-event dispatch failed", "error", derr)
				}
				return
			}
			if derr := p.server.Dispatch(rpcserver.SubAckRspEvent{ID: id}); derr != nil {
				p.logger.Error("mqttconn suback dispatch failed", "error", derr)
			}
		})
	}()

	return id, nil
}

func (p *Pipeline) SendPublish(pub rpcserver.OutboundPublish) error {
	var props *paho.PublishProperties
	if bag, ok := pub.Properties.(*PropertyBag); ok {
		props = bag.Properties()
	}

	_, err := p.conn.cm.Publish(context.Background(), &paho.Publish{
		Topic:      pub.Topic,
		QoS:        pub.QoS,
		Payload:    pub.Payload,
		Properties: props,
	})
	return err
}

func (p *Pipeline) DeliverRequest(req rpcserver.CommandRequest) error {
	if p.handler == nil {
		return fmt.Errorf("mqttconn: no application handler registered for %s", req.RequestTopic)
	}

	go func() {
		result, err := p.handler(context.Background(), req)
		if err != nil {
			p.logger.Error("mqttconn application handler failed",
				"request_topic", req.RequestTopic, "error", err)
			return
		}
		if result == nil || p.server == nil {
			return
		}
		if err := p.server.ExecutionFinish(*result); err != nil {
			p.logger.Error("mqttconn execution finish failed", "error", err)
		}
	}()

	return nil
}

func (p *Pipeline) ForwardError(err error) error {
	p.logger.Error("mqttconn forwarded rpc server error", "error", err)
	return nil
}

func (p *Pipeline) PostExecuteCommandRsp(result rpcserver.ExecutionResult) {
	p.conn.post(func() {
		if p.server == nil {
			return
		}
		if err := p.server.Dispatch(rpcserver.ExecuteCommandRspEvent{Result: result}); err != nil {
			p.logger.Error("mqttconn execute-command-rsp dispatch failed", "error", err)
		}
	})
}

func (p *Pipeline) Escalate(err error) {
	p.logger.Error("mqttconn rpc server escalated a critical error", "error", err)
}
