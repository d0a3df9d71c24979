// Package publisher notifies downstream collaborators over NATS
// JetStream. Publishing is fire-and-forget: a failed publish is logged
// and counted, never surfaced to the submitting client.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// Publisher is the event-publishing collaborator interface.
type Publisher interface {
	PublishLeadAccepted(ctx context.Context, lead model.Lead)
	Audit(ctx context.Context, event model.AuditEvent)
	Close()
}

// Client wraps NATS JetStream publishing.
type Client struct {
	nc           *nats.Conn
	js           nats.JetStreamContext
	leadSubject  string
	auditSubject string
}

// Ensure Client implements Publisher
var _ Publisher = (*Client)(nil)

// NewClient connects to NATS and creates a JetStream context.
func NewClient(url, leadSubject, auditSubject string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{
		nc:           nc,
		js:           js,
		leadSubject:  leadSubject,
		auditSubject: auditSubject,
	}, nil
}

// SetupStream ensures the lead event stream exists with the given
// configuration.
func (c *Client) SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error {
	log := logger.FromContext(ctx)

	stream, err := c.js.StreamInfo(streamConfig.Name)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamConfig.Name, err)
	}

	if stream == nil {
		_, err = c.js.AddStream(streamConfig)
		if err != nil {
			return fmt.Errorf("failed to add stream '%s': %w", streamConfig.Name, err)
		}
		log.Info("Created stream",
			zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects),
		)
		return nil
	}

	_, err = c.js.UpdateStream(streamConfig)
	if err != nil {
		return fmt.Errorf("failed to update stream '%s': %w", streamConfig.Name, err)
	}
	log.Info("Updated stream",
		zap.String("name", streamConfig.Name),
		zap.Any("subjects", streamConfig.Subjects),
	)
	return nil
}

// PublishLeadAccepted emits one event per accepted lead.
func (c *Client) PublishLeadAccepted(ctx context.Context, lead model.Lead) {
	c.publish(ctx, c.leadSubject, utils.MustMarshalJSON(lead))
}

// Audit emits an audit event for an assignment or administrative
// override. The audit-log collaborator persists it.
func (c *Client) Audit(ctx context.Context, event model.AuditEvent) {
	c.publish(ctx, c.auditSubject, utils.MustMarshalJSON(event))
}

func (c *Client) publish(ctx context.Context, subject string, payload []byte) {
	_, err := c.js.Publish(subject, payload)
	observer.IncEventPublished(subject, err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.nc != nil && !c.nc.IsClosed() {
		c.nc.Close()
	}
}

// Noop is a Publisher that drops everything, used when NATS is disabled.
type Noop struct{}

// Ensure Noop implements Publisher
var _ Publisher = (*Noop)(nil)

func (Noop) PublishLeadAccepted(ctx context.Context, lead model.Lead) {}
func (Noop) Audit(ctx context.Context, event model.AuditEvent)        {}
func (Noop) Close()                                                   {}
