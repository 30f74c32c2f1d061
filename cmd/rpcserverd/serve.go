package main

import (
	"context"
	"log/slog"

	"github.com/nugget/mqtt-rpc-server/internal/config"
	"github.com/nugget/mqtt-rpc-server/internal/connwatch"
	"github.com/nugget/mqtt-rpc-server/internal/mqttconn"
	"github.com/nugget/mqtt-rpc-server/internal/rpcserver"
)

// serve dials the broker, stands up one RpcServer instance per
// configured entry, and registers each whenever connwatch reports the
// broker ready — on first connect and again after any reconnect, since
// a lost session means a lost subscription. Blocks until ctx is
// cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn := mqttconn.NewConnection(cfg.Broker, logger)

	instances := make([]*rpcserver.RpcServer, 0, len(cfg.RPCServers))
	for _, rc := range cfg.RPCServers {
		opts := rpcserver.Options{
			SubscribeQoS:            byte(rc.SubscribeQoS),
			ResponseQoS:             byte(rc.ResponseQoS),
			SubscribeTimeoutSeconds: rc.SubscribeTimeoutSeconds,
		}

		pipeline := mqttconn.NewPipeline(conn, echoHandler(logger), logger)
		bag := mqttconn.NewPropertyBag()

		server, err := rpcserver.Init(pipeline, bag, rc.ModelID, rc.ClientID, rc.CommandName, &opts, logger)
		if err != nil {
			return err
		}
		pipeline.Bind(server)

		logger.Info("rpc server instance initialized",
			"model_id", rc.ModelID, "client_id", rc.ClientID,
			"topic", server.SubscriptionTopic())

		instances = append(instances, server)
	}

	registerAll := func(reconnected bool) {
		if reconnected {
			logger.Info("broker reconnected, re-subscribing all rpc server instances")
		}
		for _, s := range instances {
			if err := s.Register(); err != nil {
				logger.Error("rpc server register failed", "topic", s.SubscriptionTopic(), "error", err)
			}
		}
	}

	watcher := connwatch.NewManager(logger)
	watcher.Watch(ctx, connwatch.WatcherConfig{
		Name:    "broker",
		Probe:   conn.AwaitConnection,
		Backoff: connwatch.DefaultBackoffConfig(),
		OnReady: registerAll,
		OnDown: func(err error) {
			logger.Warn("broker connectivity degraded", "error", err)
		},
	})

	return conn.Start(ctx)
}
