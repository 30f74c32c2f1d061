package rpcserver

import "time"

// Event is any value the HFSM can dispatch. Concrete event types are
// defined below; unrecognized values are left unhandled by waiting and
// root and are dropped by Dispatch (a faulted instance rejects them
// with ErrInvalidState like any other event). This mirrors the "tagged
// variant with an explicit parent-of function" design spec.md §9
// calls for, expressed as a Go type switch instead of a C enum.
type Event any

// EntryEvent and ExitEvent are delivered when the HFSM enters or
// leaves a state. Exit is never expected on root (spec.md §4.5).
type (
	EntryEvent struct{}
	ExitEvent  struct{}
)

// ErrorEvent carries a fatal error discovered elsewhere in the
// pipeline that the policy must forward to its owner.
type ErrorEvent struct{ Err error }

// Benign connection-lifecycle events, swallowed by the waiting state or
// the root superstate (spec.md §4.5, "root" event handling). A faulted
// instance rejects them with ErrInvalidState like any other event.
type (
	ConnectionOpenRequestEvent  struct{}
	ConnectRspEvent             struct{}
	ConnectionCloseRequestEvent struct{}
	DisconnectRspEvent          struct{}
	PubAckRspEvent              struct{ PacketID uint16 }
)

// SubAckRspEvent is delivered when the broker acknowledges a
// SUBSCRIBE. ID is the broker-assigned packet id, compared against
// RpcServer's pending_subscription_id.
type SubAckRspEvent struct{ ID uint16 }

// TimeoutEvent is delivered when a timer armed by this policy fires.
// Timer identifies which timer, compared by identity against the
// policy's own subscribe timer so an instance never reacts to a
// timer it did not arm.
type TimeoutEvent struct{ Timer Timer }

// PubRecvIndEvent is delivered for every inbound PUBLISH the
// connection receives, regardless of topic. The request parser
// (spec.md §4.3) is responsible for filtering by topic match.
type PubRecvIndEvent struct {
	Topic      string
	Payload    []byte
	Properties PropertyBag
}

// ExecuteCommandRspEvent is delivered when the application finishes
// executing a command and posts its result back through
// RpcServer.ExecutionFinish.
type ExecuteCommandRspEvent struct{ Result ExecutionResult }

// Timer is a handle to a single armed timer, obtained from the
// pipeline. Stop is idempotent: stopping an already-fired or
// already-stopped timer is a no-op.
type Timer interface {
	Stop()
}

// Pipeline is the out-of-scope event-pipeline / connection
// collaborator (spec.md §1): it dispatches events, owns timers, and
// accepts this policy's outbound SUB_REQ / PUB_REQ. RpcServer holds a
// non-owning reference to one, obtained at Init and never mutated.
type Pipeline interface {
	// StartTimer arms a timer that fires after d by delivering a
	// TimeoutEvent carrying the returned Timer to this policy's
	// Dispatch, on the pipeline's single dispatch thread.
	StartTimer(d time.Duration) Timer

	// SendSubscribe emits an outbound SUB_REQ for topicFilter at qos
	// and returns the broker-assigned subscription id.
	SendSubscribe(topicFilter string, qos byte) (id uint16, err error)

	// SendPublish emits an outbound PUB_REQ.
	SendPublish(pub OutboundPublish) error

	// DeliverRequest invokes the application's inbound callback with
	// an ExecuteCommandReq event carrying req. Synchronous for
	// parsing purposes; the application's response, if any, arrives
	// later as a separate ExecuteCommandRspEvent.
	DeliverRequest(req CommandRequest) error

	// ForwardError forwards a fatal error to the owner as an inbound
	// event.
	ForwardError(err error) error

	// PostExecuteCommandRsp is the one thread-safe, cross-thread
	// enqueue path (spec.md §5): it schedules result to be delivered
	// to this policy as an ExecuteCommandRspEvent on the pipeline's
	// serialized dispatch thread. Safe to call from any goroutine,
	// including the one the application used to produce result.
	PostExecuteCommandRsp(result ExecutionResult)

	// Escalate reports an impossible condition (root Exit observed,
	// error-forwarding failure) as a critical platform error. It
	// never returns control to the caller in the original design;
	// here it is a hook the host process can use to crash loudly or
	// isolate the connection, and Dispatch still returns the
	// triggering error to its own caller.
	Escalate(err error)
}
