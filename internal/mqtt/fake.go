package mqtt

// FakePublisher is an in-memory Publisher. Messages are encoded exactly as
// RealPublisher encodes them and kept in Sent instead of reaching a broker.
type FakePublisher struct {
	// Topics routes the messages. NewFakePublisher uses the default prefix.
	Topics Topics

	// Sent holds every encoded message in publish order.
	Sent []Message

	// Events and SystemEvents hold what was passed in, in order.
	Events       []PressEvent
	SystemEvents []SystemEvent

	// PublishError fails Publish; SystemError fails PublishSystem.
	PublishError error
	SystemError  error

	// Connected is reported by IsConnected.
	Connected bool
	Closed    bool
}

// NewFakePublisher creates a FakePublisher on the default topics.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Topics: TopicsFor(DefaultTopicPrefix)}
}

func (f *FakePublisher) Publish(event PressEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	msg, err := PressMessage(f.Topics, event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.SystemError != nil {
		return f.SystemError
	}
	msg, err := SystemMessage(f.Topics, event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Payloads returns the payloads sent to the events topic.
func (f *FakePublisher) Payloads() [][]byte {
	return f.on(f.Topics.Events)
}

// SystemPayloads returns the payloads sent to the system topic.
func (f *FakePublisher) SystemPayloads() [][]byte {
	return f.on(f.Topics.System)
}

// Retained returns the last retained message per topic, which is what a
// subscriber joining later would be handed.
func (f *FakePublisher) Retained() map[string]Message {
	out := make(map[string]Message)
	for _, m := range f.Sent {
		if m.Retained {
			out[m.Topic] = m
		}
	}
	return out
}

func (f *FakePublisher) on(topic string) [][]byte {
	var out [][]byte
	for _, m := range f.Sent {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
