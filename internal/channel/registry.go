package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/notifyd/internal/metrics"
	"github.com/shohag/notifyd/internal/models"
)

// Routing failure reasons surfaced in RouteResult.Err.
const (
	ReasonNotRegistered    = "channel not registered"
	ReasonUnavailable      = "channel unavailable"
	ReasonInvalidRecipient = "invalid recipient"
)

// RouteResult is the outcome of dispatching one notification to its
// transport. Route never returns an error or panics; every failure mode is
// folded into this shape.
type RouteResult struct {
	Success     bool
	Channel     models.Channel
	MessageID   string
	Err         string
	Retryable   bool
	DeliveredAt *time.Time
	Duration    time.Duration
}

// Registry holds the transports registered per channel and routes
// notifications to them. Registration happens at startup from the statically
// known transport list; zero, one or many channels may be registered.
type Registry struct {
	mu         sync.RWMutex
	transports map[models.Channel]Transport
	sink       metrics.Sink
	log        zerolog.Logger
}

func NewRegistry(sink metrics.Sink, log zerolog.Logger) *Registry {
	return &Registry{
		transports: make(map[models.Channel]Transport),
		sink:       sink,
		log:        log.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Channel()] = t
	r.log.Info().Str("channel", string(t.Channel())).Msg("transport registered")
}

func (r *Registry) Transport(c models.Channel) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[c]
	return t, ok
}

func (r *Registry) Channels() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Channel, 0, len(r.transports))
	for c := range r.transports {
		out = append(out, c)
	}
	return out
}

// Route dispatches a notification to the transport registered for its
// channel, enforcing availability and recipient checks before the send. A
// delivery metric is emitted on every call, success or failure.
func (r *Registry) Route(ctx context.Context, n *models.Notification) *RouteResult {
	start := time.Now()
	res := r.route(ctx, n)
	res.Channel = n.Channel
	res.Duration = time.Since(start)

	r.sink.RecordDelivery(metrics.DeliveryEvent{
		Channel:  n.Channel,
		Success:  res.Success,
		Duration: res.Duration,
	})
	return res
}

func (r *Registry) route(ctx context.Context, n *models.Notification) (res *RouteResult) {
	// A misbehaving transport must not take the worker down with it.
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("channel", string(n.Channel)).Interface("panic", p).Msg("transport panicked")
			res = &RouteResult{Err: fmt.Sprintf("transport panic: %v", p), Retryable: true}
		}
	}()

	t, ok := r.Transport(n.Channel)
	if !ok {
		return &RouteResult{Err: ReasonNotRegistered, Retryable: true}
	}

	if !t.IsAvailable() {
		return &RouteResult{Err: ReasonUnavailable, Retryable: true}
	}

	if !t.ValidateRecipient(n.Recipient) {
		// Format failures are permanent; spending retry budget on them is waste.
		return &RouteResult{Err: ReasonInvalidRecipient, Retryable: false}
	}

	sent, err := t.Send(ctx, n)
	if err != nil {
		return &RouteResult{Err: err.Error(), Retryable: true}
	}

	out := &RouteResult{Success: true}
	if sent != nil {
		out.MessageID = sent.MessageID
		out.DeliveredAt = sent.DeliveredAt
	}
	return out
}
