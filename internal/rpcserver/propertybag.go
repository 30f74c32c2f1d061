package rpcserver

// PropertyBag is the thin semantic wrapper the RPC server needs over
// the MQTT5 property-bag codec (spec.md §4.2). Encoding/decoding the
// wire format is out of scope for this package; internal/mqttconn
// supplies the production implementation backed by paho.golang's
// publish properties, and tests supply an in-memory one.
//
// A single PropertyBag instance plays two roles depending on which
// direction it came from: an inbound bag (borrowed from a received
// PUBLISH, read-only in practice) or the RpcServer's own reusable
// outbound bag (write-then-Empty). Both directions share this
// interface because spec.md §4.2 defines all seven operations on the
// same abstraction.
type PropertyBag interface {
	// ResponseTopic returns the MQTT5 response-topic property, or
	// ok=false if absent.
	ResponseTopic() (value []byte, ok bool)

	// CorrelationData returns the MQTT5 correlation-data property, or
	// ok=false if absent.
	CorrelationData() (value []byte, ok bool)

	// ContentType returns the MQTT5 content-type property, or
	// ok=false if absent.
	ContentType() (value []byte, ok bool)

	// AppendUserProperty appends a user property, e.g. "status" or
	// "statusMessage".
	AppendUserProperty(key, value string)

	// AppendContentType sets the MQTT5 content-type system property.
	AppendContentType(value string)

	// AppendCorrelationData sets the MQTT5 correlation-data system
	// property.
	AppendCorrelationData(value []byte)

	// Empty clears the bag's properties, making it safe to reuse for
	// the next outbound publish. RpcServer only calls it on its own
	// outbound bag, never on an inbound bag's borrowed view.
	Empty()
}
