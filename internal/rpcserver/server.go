// Package rpcserver implements the core of an MQTT5 RPC server policy:
// a hierarchical state machine that subscribes to a command topic
// filter, matches inbound PUBLISH messages against it, extracts
// response-routing metadata from MQTT5 properties, hands requests to
// an application, and publishes replies with the right properties set.
//
// The MQTT5 transport, the event pipeline/connection, the property-bag
// wire codec, and the application that executes commands are external
// collaborators expressed here as the Pipeline, PropertyBag and the
// Register/ExecutionFinish contract; internal/mqttconn supplies the
// production Pipeline and PropertyBag backed by paho.golang.
package rpcserver

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// leafState identifies the HFSM's current leaf state (spec.md §4.5).
// Both leaves share the root superstate, reached by bubbling unhandled
// events up from whichever leaf is current.
type leafState int

const (
	stateWaiting leafState = iota
	stateFaulted
)

func (l leafState) String() string {
	switch l {
	case stateWaiting:
		return "waiting"
	case stateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// RpcServer is one policy instance (spec.md §3). The zero value is not
// usable; construct one with Init.
type RpcServer struct {
	subscriptionTopic     string
	options               Options
	bag                   PropertyBag
	pendingSubscriptionID uint16
	subscribeTimer        Timer
	pipeline              Pipeline
	leaf                  leafState
	logger                *slog.Logger
}

// Init builds the subscription topic from modelID, clientID and
// commandName (spec.md §4.1), stores the supplied collaborators, and
// performs the HFSM's initial transition (root → waiting). opts may
// be nil, in which case DefaultOptions is used. pipeline may be nil
// for a policy that is constructed but not attached to a connection;
// Register and ExecutionFinish then fail with ErrNotSupported, since
// the pipeline cannot be attached after Init.
func Init(
	pipeline Pipeline,
	bag PropertyBag,
	modelID, clientID, commandName string,
	opts *Options,
	logger *slog.Logger,
) (*RpcServer, error) {
	if bag == nil {
		return nil, fmt.Errorf("%w: property_bag must not be nil", ErrInvalidArgument)
	}

	topic, err := BuildTopicString(modelID, clientID, commandName)
	if err != nil {
		return nil, err
	}

	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RpcServer{
		subscriptionTopic: topic,
		options:           o,
		bag:               bag,
		pipeline:          pipeline,
		leaf:              stateWaiting,
		logger:            logger,
	}, nil
}

// SubscriptionTopic returns the full topic filter this instance
// subscribes to and matches inbound PUBLISHes against. Stable for the
// instance's lifetime.
func (s *RpcServer) SubscriptionTopic() string {
	return s.subscriptionTopic
}

// State reports the current HFSM leaf state, for introspection and
// tests.
func (s *RpcServer) State() string {
	return s.leaf.String()
}

// Register arms the subscribe timer and emits a SubscribeRequest for
// this instance's subscription topic (spec.md §6). It fails with
// ErrNotSupported if the instance is not attached to a pipeline.
func (s *RpcServer) Register() error {
	if s.pipeline == nil {
		return ErrNotSupported
	}

	timeout := time.Duration(s.options.SubscribeTimeoutSeconds) * time.Second
	timer := s.pipeline.StartTimer(timeout)

	id, err := s.pipeline.SendSubscribe(s.subscriptionTopic, s.options.SubscribeQoS)
	if err != nil {
		timer.Stop()
		return err
	}

	s.subscribeTimer = timer
	s.pendingSubscriptionID = id
	return nil
}

// ExecutionFinish posts an ExecuteCommandRsp event to the pipeline on
// behalf of the application (spec.md §6). It is the cross-thread entry
// point named in spec.md §5: the pipeline's PostExecuteCommandRsp is
// the only thread-safe enqueue path, so ExecutionFinish itself may be
// called from any goroutine. Fails with ErrNotSupported if the
// instance is not attached to a pipeline.
func (s *RpcServer) ExecutionFinish(result ExecutionResult) error {
	if s.pipeline == nil {
		return ErrNotSupported
	}
	s.pipeline.PostExecuteCommandRsp(result)
	return nil
}

// Dispatch delivers a single event to the HFSM. It must be called on
// the pipeline's serialized dispatch thread; RpcServer performs no
// internal locking and is not safe for concurrent Dispatch calls
// (spec.md §5).
//
// The leaf state handles the event first; if it reports itself
// unhandled, the event bubbles to the root superstate. An event
// unhandled by both is silently dropped, matching the original HFSM's
// AZ_HFSM_RETURN_HANDLE_BY_SUPERSTATE fallthrough.
func (s *RpcServer) Dispatch(ev Event) error {
	var handled bool
	var err error

	switch s.leaf {
	case stateWaiting:
		handled, err = waiting(s, ev)
	case stateFaulted:
		handled, err = faulted(s, ev)
	}
	if err != nil {
		return err
	}

	if !handled {
		_, err = root(s, ev)
	}
	return err
}

// root handles events identically across every child state, and
// fatal conditions that indicate the HFSM itself is broken (spec.md
// §4.5, "root").
func root(s *RpcServer, ev Event) (bool, error) {
	switch e := ev.(type) {
	case EntryEvent:
		return true, nil

	case ExitEvent:
		// waiting does not handle Exit, so from there it reaches here
		// (faulted rejects it with ErrInvalidState before it can). Root
		// itself has no superstate to exit into, so receiving one at
		// all means the host delivered an event the HFSM never
		// produces internally.
		err := fmt.Errorf("rpcserver: HFSM asked to leave root, which is impossible by design")
		s.pipeline.Escalate(err)
		return true, err

	case ErrorEvent:
		if fwdErr := s.pipeline.ForwardError(e.Err); fwdErr != nil {
			s.pipeline.Escalate(fwdErr)
			return true, fwdErr
		}
		return true, nil

	case ConnectionOpenRequestEvent, ConnectRspEvent, ConnectionCloseRequestEvent,
		DisconnectRspEvent, PubAckRspEvent:
		return true, nil

	default:
		return false, nil
	}
}

// waiting is the operational state: it owns the subscribe timer,
// matches inbound PUBLISHes, and builds responses (spec.md §4.5,
// "waiting"). It does not handle ExitEvent: unlike EntryEvent, Exit is
// never expected here, so leaving it unhandled sends it to root, where
// it is treated as a fatal condition.
func waiting(s *RpcServer, ev Event) (bool, error) {
	switch e := ev.(type) {
	case EntryEvent:
		return true, nil

	case SubAckRspEvent:
		if e.ID == s.pendingSubscriptionID {
			s.disarmSubscribeTimer()
		}
		// An ack for a different instance's subscription: keep waiting.
		return true, nil

	case TimeoutEvent:
		if e.Timer == s.subscribeTimer {
			// Subscription failure is unrecoverable for this instance:
			// re-subscribing would racily duplicate the subscription,
			// and silent subscription loss is a correctness hazard.
			s.leaf = stateFaulted
		}
		return true, nil

	case PubRecvIndEvent:
		s.handlePubRecv(e)
		return true, nil

	case ExecuteCommandRspEvent:
		return true, s.handleExecutionResult(e.Result)

	case ConnectionOpenRequestEvent, ConnectRspEvent, PubAckRspEvent:
		return true, nil

	default:
		return false, nil
	}
}

// faulted is terminal: every event is rejected and there is no
// transition out. The instance must be destroyed and re-created to
// recover (spec.md §4.5, "faulted").
func faulted(*RpcServer, Event) (bool, error) {
	return true, ErrInvalidState
}

// disarmSubscribeTimer stops the subscribe timer, if armed, and
// clears pending_subscription_id. Safe to call when no timer is
// armed. Invariant: pending_subscription_id == 0 iff no subscribe
// timer is armed (spec.md §3).
func (s *RpcServer) disarmSubscribeTimer() {
	if s.subscribeTimer != nil {
		s.subscribeTimer.Stop()
		s.subscribeTimer = nil
	}
	s.pendingSubscriptionID = 0
}

// handlePubRecv implements the request parser (spec.md §4.3). Events
// whose topic does not match the subscription are ignored without
// error. A match implies the broker accepted our SUBSCRIBE even if no
// SUBACK has arrived yet, so any pending subscribe timer is disarmed.
// A missing required property drops the request silently: it is not
// fatal, since the broker or a misbehaving peer may send malformed
// PUBLISHes (spec.md §7).
func (s *RpcServer) handlePubRecv(e PubRecvIndEvent) {
	if !topicMatches(s.subscriptionTopic, e.Topic) {
		return
	}

	if s.pendingSubscriptionID != 0 {
		s.disarmSubscribeTimer()
	}

	responseTopic, ok := e.Properties.ResponseTopic()
	if !ok {
		s.logger.Warn("dropping request: missing response-topic property", "topic", e.Topic)
		return
	}
	correlationData, ok := e.Properties.CorrelationData()
	if !ok {
		s.logger.Warn("dropping request: missing correlation-data property", "topic", e.Topic)
		return
	}
	contentType, ok := e.Properties.ContentType()
	if !ok {
		s.logger.Warn("dropping request: missing content-type property", "topic", e.Topic)
		return
	}

	req := CommandRequest{
		CorrelationID: correlationData,
		ResponseTopic: string(responseTopic),
		ContentType:   string(contentType),
		RequestTopic:  e.Topic,
		RequestData:   e.Payload,
	}

	if err := s.pipeline.DeliverRequest(req); err != nil {
		s.logger.Warn("application rejected request", "topic", e.Topic, "error", err)
	}
}

// handleExecutionResult implements the response builder (spec.md
// §4.4). If the result's request topic does not belong to this
// instance's subscription it is logged and ignored: the event bus may
// be shared by several policy instances. Otherwise a response is
// built and published, and the property bag is emptied unconditionally
// afterward so a partial failure never leaves stale properties behind.
func (s *RpcServer) handleExecutionResult(result ExecutionResult) error {
	if !topicMatches(s.subscriptionTopic, result.RequestTopic) {
		s.logger.Debug("topic does not match subscription, ignoring",
			"request_topic", result.RequestTopic, "subscription", s.subscriptionTopic)
		return nil
	}

	pub, buildErr := s.buildResponse(result)

	var sendErr error
	if buildErr == nil {
		sendErr = s.pipeline.SendPublish(pub)
	}
	s.bag.Empty()

	if buildErr != nil {
		return buildErr
	}
	return sendErr
}

// buildResponse fills the instance's reusable property bag and
// returns the outbound PUBLISH, per spec.md §4.4's numbered steps. It
// does not empty the bag; the caller does that unconditionally.
func (s *RpcServer) buildResponse(result ExecutionResult) (OutboundPublish, error) {
	var payload []byte

	if !result.Success() {
		// Open question (a) in spec.md §9: whether error_message is
		// strictly required. Decided in DESIGN.md to match the
		// original's permissiveness — an empty message is appended
		// as-is rather than rejected.
		s.bag.AppendUserProperty("statusMessage", result.ErrorMessage)
		payload = []byte{}
	} else {
		// Open question (b): whether a payload is required on
		// success. Same decision: an empty response is allowed.
		s.bag.AppendContentType(result.ContentType)
		payload = result.Response
	}

	s.bag.AppendUserProperty("status", strconv.FormatInt(int64(result.Status), 10))
	s.bag.AppendCorrelationData(result.CorrelationID)

	return OutboundPublish{
		Topic:      result.ResponseTopic,
		QoS:        s.options.ResponseQoS,
		Payload:    payload,
		Properties: s.bag,
	}, nil
}
