package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Enqueue when the inbound queue has no room.
var ErrQueueFull = errors.New("inbound queue full")

type inboundTask struct {
	channel ChannelType
	raw     []byte
}

// Dispatcher owns the inbound worker pool and the outbound send path.
// Webhook handlers enqueue raw bodies and return immediately; workers
// normalize them through the registered adapter and hand each canonical
// message to the InboundProcessor.
type Dispatcher struct {
	registry  *Registry
	logger    *slog.Logger
	processor InboundProcessor
	procMu    sync.RWMutex

	inboundQueue   chan inboundTask
	inboundWorkers int
	inboundOnce    sync.Once
	inboundCancel  context.CancelFunc
	wg             sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with a 256 slot queue and 4 workers.
func NewDispatcher(log *slog.Logger, registry *Registry) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{
		registry:       registry,
		logger:         log.With(slog.String("component", "channel")),
		inboundQueue:   make(chan inboundTask, 256),
		inboundWorkers: 4,
	}
}

// Registry returns the adapter registry used by this dispatcher.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// SetProcessor installs the pipeline that consumes normalized messages.
func (d *Dispatcher) SetProcessor(p InboundProcessor) {
	d.procMu.Lock()
	d.processor = p
	d.procMu.Unlock()
}

func (d *Dispatcher) currentProcessor() InboundProcessor {
	d.procMu.RLock()
	defer d.procMu.RUnlock()
	return d.processor
}

// RegisterAdapter adds an adapter to the registry and logs the registration.
func (d *Dispatcher) RegisterAdapter(adapter Adapter) {
	if adapter == nil {
		return
	}
	if err := d.registry.Register(adapter); err != nil {
		d.logger.Warn("adapter registration failed", slog.String("channel", adapter.Type().String()), slog.Any("error", err))
		return
	}
	d.logger.Info("adapter registered", slog.String("channel", adapter.Type().String()))
}

// Enqueue schedules a raw webhook body for processing. It never blocks.
func (d *Dispatcher) Enqueue(ctx context.Context, channelType ChannelType, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := d.registry.GetNormalizer(channelType); !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	body := make([]byte, len(raw))
	copy(body, raw)
	select {
	case d.inboundQueue <- inboundTask{channel: channelType, raw: body}:
		return nil
	default:
		d.logger.Warn("inbound queue full, dropping webhook", slog.String("channel", channelType.String()))
		return ErrQueueFull
	}
}

// Normalize runs the channel's normalizer synchronously.
func (d *Dispatcher) Normalize(channelType ChannelType, raw []byte) ([]Inbound, error) {
	n, ok := d.registry.GetNormalizer(channelType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channelType)
	}
	return n.Normalize(raw)
}

// Start launches the inbound workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.inboundOnce.Do(func() {
		workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		d.inboundCancel = cancel
		for i := 0; i < d.inboundWorkers; i++ {
			d.wg.Add(1)
			go d.runWorker(workerCtx)
		}
		d.logger.Info("inbound workers started", slog.Int("workers", d.inboundWorkers))
	})
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.inboundQueue:
			d.process(ctx, task)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, task inboundTask) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("inbound task panicked", slog.String("channel", task.channel.String()), slog.Any("panic", r))
		}
	}()
	msgs, err := d.Normalize(task.channel, task.raw)
	if err != nil {
		d.logger.Warn("normalize inbound failed", slog.String("channel", task.channel.String()), slog.Any("error", err))
		return
	}
	processor := d.currentProcessor()
	if processor == nil {
		d.logger.Warn("no inbound processor, dropping message", slog.String("channel", task.channel.String()))
		return
	}
	for _, msg := range msgs {
		if err := processor.HandleInbound(ctx, msg); err != nil {
			d.logger.Error("handle inbound failed",
				slog.String("channel", task.channel.String()),
				slog.String("thread", msg.ThreadName),
				slog.Any("error", err),
			)
		}
	}
}

// Shutdown stops the workers and waits for in-flight tasks.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.inboundCancel != nil {
		d.inboundCancel()
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers an outbound message through the channel's adapter.
func (d *Dispatcher) Send(ctx context.Context, msg Outbound) error {
	sender, ok := d.registry.GetSender(msg.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, msg.Channel)
	}
	if msg.Recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if msg.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	d.logger.Info("send outbound", slog.String("channel", msg.Channel.String()), slog.String("recipient", msg.Recipient))
	return sender.Send(ctx, msg)
}

// Deliver is Send with failures logged instead of returned. Delivery is not retried.
func (d *Dispatcher) Deliver(ctx context.Context, msg Outbound) {
	if err := d.Send(ctx, msg); err != nil {
		d.logger.Error("send outbound failed",
			slog.String("channel", msg.Channel.String()),
			slog.String("recipient", msg.Recipient),
			slog.Any("error", err),
		)
	}
}

// QueueDepth reports the inbound queue length and capacity.
func (d *Dispatcher) QueueDepth() (int, int) {
	return len(d.inboundQueue), cap(d.inboundQueue)
}
