package rpcserver

// Options configures an RpcServer instance. It is immutable after
// init (spec.md §3).
type Options struct {
	SubscribeQoS            byte
	ResponseQoS             byte
	SubscribeTimeoutSeconds int
}

// DefaultOptions returns the options the original implementation
// defaults to: QoS 1 for both subscribe and response, a ten second
// subscribe timeout (spec.md §6).
func DefaultOptions() Options {
	return Options{
		SubscribeQoS:            1,
		ResponseQoS:             1,
		SubscribeTimeoutSeconds: 10,
	}
}

// CommandRequest is the ephemeral record the request parser builds
// from an inbound PUBLISH (spec.md §3). It borrows the PUBLISH
// event's buffers and is only valid for the duration of the
// application's inbound callback (Pipeline.DeliverRequest).
type CommandRequest struct {
	CorrelationID []byte
	ResponseTopic string
	ContentType   string
	RequestTopic  string
	RequestData   []byte
}

// ExecutionResult is the ephemeral record the application produces in
// response to a CommandRequest (spec.md §3), consumed by the response
// builder.
type ExecutionResult struct {
	Status        int32
	ErrorMessage  string
	Response      []byte
	ContentType   string
	CorrelationID []byte
	ResponseTopic string
	RequestTopic  string
}

// Success reports whether the result's status falls in the 2xx range,
// per the response builder's branch condition in spec.md §4.4.
func (r ExecutionResult) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// OutboundPublish is the outbound PUBLISH the response builder
// constructs and hands to the pipeline (spec.md §4.4).
type OutboundPublish struct {
	Topic      string
	QoS        byte
	Payload    []byte
	Properties PropertyBag
}
