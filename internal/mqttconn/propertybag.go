package mqttconn

import "github.com/eclipse/paho.golang/paho"

// PropertyBag adapts a [paho.PublishProperties] to rpcserver.PropertyBag.
// A bag created by NewPropertyBag is owned by its RpcServer and reused
// across responses; a bag created by newInboundPropertyBag borrows the
// properties off a received PUBLISH and is read-only in practice,
// since Empty on an inbound bag would discard the caller's own
// packet, not our appended properties.
type PropertyBag struct {
	props *paho.PublishProperties
}

// NewPropertyBag returns a fresh, empty outbound property bag.
func NewPropertyBag() *PropertyBag {
	return &PropertyBag{props: &paho.PublishProperties{}}
}

func newInboundPropertyBag(props *paho.PublishProperties) *PropertyBag {
	if props == nil {
		props = &paho.PublishProperties{}
	}
	return &PropertyBag{props: props}
}

func (b *PropertyBag) ResponseTopic() ([]byte, bool) {
	if b.props.ResponseTopic == "" {
		return nil, false
	}
	return []byte(b.props.ResponseTopic), true
}

func (b *PropertyBag) CorrelationData() ([]byte, bool) {
	if len(b.props.CorrelationData) == 0 {
		return nil, false
	}
	return b.props.CorrelationData, true
}

func (b *PropertyBag) ContentType() ([]byte, bool) {
	if b.props.ContentType == "" {
		return nil, false
	}
	return []byte(b.props.ContentType), true
}

func (b *PropertyBag) AppendUserProperty(key, value string) {
	b.props.User = append(b.props.User, paho.UserProperty{Key: key, Value: value})
}

func (b *PropertyBag) AppendContentType(value string) {
	b.props.ContentType = value
}

func (b *PropertyBag) AppendCorrelationData(value []byte) {
	b.props.CorrelationData = value
}

func (b *PropertyBag) Empty() {
	*b.props = paho.PublishProperties{}
}

// Properties exposes the underlying paho properties for SendPublish to
// attach to the outbound PUBLISH packet.
func (b *PropertyBag) Properties() *paho.PublishProperties {
	return b.props
}
