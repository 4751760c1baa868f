// Package notify creates notification records and pushes them to their
// recipient's live stream. The dispatcher is a stateless service object
// invoked from arbitrary backend code; it takes the store and the fan-out
// bus as explicit dependencies so it can be exercised with fakes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/metrics"
	"github.com/foundrly/platform/internal/models"
	"github.com/foundrly/platform/internal/realtime"
	"github.com/foundrly/platform/internal/store"
)

// DefaultVerb is used when the caller supplies none.
const DefaultVerb = "has an update"

var (
	// ErrInvalidRecipient means the recipient argument was neither a user
	// nor a user id.
	ErrInvalidRecipient = errors.New("notify: recipient must be a user or user id")
	// ErrRecipientNotFound means the recipient id resolved to no user.
	ErrRecipientNotFound = errors.New("notify: recipient not found")
)

// Payload is the frame delivered verbatim to the recipient's notification
// connection.
type Payload struct {
	ID            int64   `json:"id"`
	RecipientID   int64   `json:"recipient_id"`
	ActorID       *int64  `json:"actor_id"`
	ActorUsername *string `json:"actor_username"`
	Verb          string  `json:"verb"`
	TargetInfo    *string `json:"target_info"`
	ActionURL     *string `json:"action_url"`
	Timestamp     string  `json:"timestamp"`
	IsRead        bool    `json:"is_read"`
	Message       string  `json:"message"`
}

// Option configures a single dispatch.
type Option func(*dispatchParams)

type dispatchParams struct {
	actor     *models.User
	verb      string
	target    *models.TargetRef
	actionURL *string
	message   string
}

// WithActor records who caused the notification.
func WithActor(actor *models.User) Option {
	return func(p *dispatchParams) { p.actor = actor }
}

// WithVerb sets what happened ("followed you", "liked your post").
func WithVerb(verb string) Option {
	return func(p *dispatchParams) { p.verb = verb }
}

// WithTarget tags the entity the notification is about.
func WithTarget(kind string, id int64) Option {
	return func(p *dispatchParams) { p.target = &models.TargetRef{Kind: kind, ID: id} }
}

// WithActionURL links the notification to its content.
func WithActionURL(url string) Option {
	return func(p *dispatchParams) { p.actionURL = &url }
}

// WithMessage overrides the synthesized human-readable message.
func WithMessage(message string) Option {
	return func(p *dispatchParams) { p.message = message }
}

// Dispatcher persists notifications and publishes them to the recipient's
// single-user group.
type Dispatcher struct {
	store     store.DataStore
	bus       realtime.Bus
	resolvers *ResolverRegistry
	log       zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(st store.DataStore, bus realtime.Bus, resolvers *ResolverRegistry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: st, bus: bus, resolvers: resolvers, log: log}
}

// CreateAndSend persists a notification for the recipient and pushes it to
// the recipient's live stream. Recipient may be a *models.User or a user
// id (int/int64). Side effects are strictly ordered: the row is written
// before anything is published, and a failed write publishes nothing.
func (d *Dispatcher) CreateAndSend(ctx context.Context, recipient interface{}, opts ...Option) (*models.Notification, error) {
	user, err := d.resolveRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}

	var p dispatchParams
	for _, opt := range opts {
		opt(&p)
	}

	verb := p.verb
	if verb == "" {
		verb = DefaultVerb
	}

	var actorID *int64
	if p.actor != nil {
		actorID = &p.actor.ID
	}

	notification, err := d.store.CreateNotification(ctx, store.NotificationParams{
		RecipientID: user.ID,
		ActorID:     actorID,
		Verb:        verb,
		Target:      p.target,
		ActionURL:   p.actionURL,
	})
	if err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	payload := d.buildPayload(ctx, notification, user, &p)

	group := realtime.UserNotificationsGroup(user.ID)
	ev, err := realtime.NewEvent(realtime.EventNotification, group, payload)
	if err != nil {
		return notification, err
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		// The row exists; only the live push was lost.
		d.log.Error().Err(err).Int64("recipient_id", user.ID).Msg("notification publish failed")
		return notification, nil
	}

	metrics.NotificationsDispatched.Inc()
	d.log.Info().Int64("recipient_id", user.ID).Str("verb", verb).Msg("notification dispatched")
	return notification, nil
}

func (d *Dispatcher) resolveRecipient(ctx context.Context, recipient interface{}) (*models.User, error) {
	switch r := recipient.(type) {
	case *models.User:
		if r == nil {
			return nil, ErrInvalidRecipient
		}
		return r, nil
	case int64:
		return d.lookupRecipient(ctx, r)
	case int:
		return d.lookupRecipient(ctx, int64(r))
	default:
		return nil, ErrInvalidRecipient
	}
}

func (d *Dispatcher) lookupRecipient(ctx context.Context, id int64) (*models.User, error) {
	user, err := d.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrRecipientNotFound
	}
	return user, nil
}

func (d *Dispatcher) buildPayload(ctx context.Context, n *models.Notification, recipient *models.User, p *dispatchParams) Payload {
	payload := Payload{
		ID:          n.ID,
		RecipientID: recipient.ID,
		Verb:        n.Verb,
		ActionURL:   n.ActionURL,
		Timestamp:   n.Timestamp.Format(time.RFC3339Nano),
		IsRead:      n.IsRead,
	}

	actorName := "Someone"
	if p.actor != nil {
		payload.ActorID = &p.actor.ID
		payload.ActorUsername = &p.actor.Username
		actorName = p.actor.Username
	}

	if n.Target != nil {
		rendered := d.resolvers.Resolve(ctx, *n.Target)
		payload.TargetInfo = &rendered
	}

	payload.Message = p.message
	if payload.Message == "" {
		payload.Message = fmt.Sprintf("%s %s!", actorName, n.Verb)
	}
	return payload
}
