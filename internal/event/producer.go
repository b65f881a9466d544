package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/auth-service/internal/domain"
	pkgkafka "github.com/utafrali/auth-service/pkg/kafka"
)

// Kafka topic constants for authentication domain events.
const (
	TopicAccountRegistered = "auth.account.registered"
	TopicAccountLogin      = "auth.account.login"
)

// Aggregate type constant.
const AggregateTypeAccount = "account"

// Source identifier for events originating from the auth service.
const SourceAuthService = "auth-service"

// AccountRegisteredData is the payload for an account.registered event.
type AccountRegisteredData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// AccountLoginData is the payload for an account.login event.
type AccountLoginData struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Producer publishes authentication domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAccountRegistered publishes an account.registered event.
func (p *Producer) PublishAccountRegistered(ctx context.Context, acct *domain.Account) error {
	data := AccountRegisteredData{
		ID:        acct.ID,
		Email:     acct.Email,
		FirstName: acct.FirstName,
		LastName:  acct.LastName,
		Role:      acct.Role,
	}

	event, err := pkgkafka.NewEvent(TopicAccountRegistered, acct.ID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create account.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountRegistered, event); err != nil {
		return fmt.Errorf("publish account.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.registered event",
		slog.String("account_id", acct.ID),
		slog.String("email", acct.Email),
	)

	return nil
}

// PublishAccountLogin publishes an account.login event.
func (p *Producer) PublishAccountLogin(ctx context.Context, accountID, sessionID, ip, userAgent string) error {
	data := AccountLoginData{
		AccountID: accountID,
		SessionID: sessionID,
		IP:        ip,
		UserAgent: userAgent,
	}

	event, err := pkgkafka.NewEvent(TopicAccountLogin, accountID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create account.login event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountLogin, event); err != nil {
		return fmt.Errorf("publish account.login event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.login event",
		slog.String("account_id", accountID),
		slog.String("session_id", sessionID),
	)

	return nil
}
