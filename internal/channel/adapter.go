package channel

import "context"

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type           ChannelType
	DisplayName    string
	Webhook        bool
	OutboundPolicy OutboundPolicy
}

// Normalizer turns a raw webhook body into canonical inbound messages.
// Payloads the adapter does not care about (echoes, delivery receipts)
// yield an empty slice rather than an error.
type Normalizer interface {
	Normalize(raw []byte) ([]Inbound, error)
}

// Sender is an adapter capable of pushing replies to the platform.
type Sender interface {
	Send(ctx context.Context, msg Outbound) error
}

// InboundProcessor runs the conversation pipeline for one normalized message.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, msg Inbound) error
}

// InboundProcessorFunc adapts a function to InboundProcessor.
type InboundProcessorFunc func(ctx context.Context, msg Inbound) error

func (f InboundProcessorFunc) HandleInbound(ctx context.Context, msg Inbound) error {
	return f(ctx, msg)
}
