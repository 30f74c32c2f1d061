package main

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nugget/mqtt-rpc-server/internal/mqttconn"
	"github.com/nugget/mqtt-rpc-server/internal/rpcserver"
)

// echoHandler returns a demo ApplicationHandler that upper-cases the
// request payload and echoes it back with a 200 status. It exists to
// give rpcserverd something to do out of the box; real deployments
// supply their own mqttconn.ApplicationHandler.
func echoHandler(logger *slog.Logger) mqttconn.ApplicationHandler {
	return func(_ context.Context, req rpcserver.CommandRequest) (*rpcserver.ExecutionResult, error) {
		traceID := uuid.NewString()
		logger.Info("executing command",
			"trace_id", traceID,
			"request_topic", req.RequestTopic,
			"content_type", req.ContentType,
			"bytes", len(req.RequestData),
		)

		return &rpcserver.ExecutionResult{
			Status:        200,
			Response:      bytes.ToUpper(req.RequestData),
			ContentType:   req.ContentType,
			CorrelationID: req.CorrelationID,
			ResponseTopic: req.ResponseTopic,
			RequestTopic:  req.RequestTopic,
		}, nil
	}
}
