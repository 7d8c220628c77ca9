package event

import (
	"context"
	"log/slog"

	"github.com/ogrinko/userauth/internal/domain"
	"github.com/ogrinko/userauth/pkg/kafka"
	"github.com/ogrinko/userauth/pkg/logger"
)

// Topics for user lifecycle events.
const (
	TopicUserRegistered    = "userauth.user.registered"
	TopicUserVerified      = "userauth.user.verified"
	TopicUserPasswordReset = "userauth.user.password_reset"
	TopicUserUpdated       = "userauth.user.updated"
)

const (
	aggregateType = "user"
	source        = "userauth"
)

// Publisher emits user lifecycle events. A nil *Publisher is valid and
// publishes nothing, which is how event publishing stays optional.
type Publisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewPublisher wraps a Kafka producer for user lifecycle events.
func NewPublisher(producer *kafka.Producer, log *slog.Logger) *Publisher {
	return &Publisher{producer: producer, logger: log}
}

// UserRegistered is published when a new account is created.
type UserRegistered struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// UserVerified is published when an email address is confirmed.
type UserVerified struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// UserPasswordReset is published when a password is reset or changed.
type UserPasswordReset struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// UserUpdated is published when profile fields change.
type UserUpdated struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Registered publishes a user.registered event.
func (p *Publisher) Registered(ctx context.Context, user *domain.User) {
	p.publish(ctx, TopicUserRegistered, "user.registered", user.ID, UserRegistered{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

// Verified publishes a user.verified event.
func (p *Publisher) Verified(ctx context.Context, user *domain.User) {
	p.publish(ctx, TopicUserVerified, "user.verified", user.ID, UserVerified{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// PasswordReset publishes a user.password_reset event.
func (p *Publisher) PasswordReset(ctx context.Context, user *domain.User) {
	p.publish(ctx, TopicUserPasswordReset, "user.password_reset", user.ID, UserPasswordReset{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// Updated publishes a user.updated event.
func (p *Publisher) Updated(ctx context.Context, user *domain.User) {
	p.publish(ctx, TopicUserUpdated, "user.updated", user.ID, UserUpdated{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// publish is fire-and-forget: a broker failure is logged, never surfaced
// to the caller, so auth operations do not fail on event delivery.
func (p *Publisher) publish(ctx context.Context, topic, eventType, aggregateID string, data any) {
	if p == nil || p.producer == nil {
		return
	}

	evt, err := kafka.NewEvent(eventType, aggregateID, aggregateType, source, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}

	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	if err := p.producer.Publish(ctx, topic, evt); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
