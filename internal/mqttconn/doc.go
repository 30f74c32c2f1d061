// Package mqttconn is the MQTT5 transport and event-pipeline
// collaborator rpcserver.RpcServer depends on but does not implement
// (the policy core only knows about the rpcserver.Pipeline and
// rpcserver.PropertyBag interfaces).
//
// Connection wraps a single [autopaho.ConnectionManager] and owns the
// serialized dispatch goroutine every RpcServer instance attached to
// it is driven from, matching the single-threaded cooperative model
// the policy core assumes. Pipeline is the per-instance adapter handed
// to rpcserver.Init; PropertyBag wraps a [paho.PublishProperties] for
// both inbound (borrowed, read-only) and outbound (owned, reusable)
// use.
//
// Several RpcServer instances may share one Connection — every
// inbound PUBLISH is broadcast to all of them, and each decides for
// itself whether the topic belongs to it.
package mqttconn
