package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"dataload-service/internal/models"
)

// Session lifecycle event types
const (
	SessionSubmitted  = "dataload.session.submitted"
	SessionProcessing = "dataload.session.processing"
	SessionCompleted  = "dataload.session.completed"
)

const streamName = "DATALOAD_EVENTS"

// SessionEvent describes a lifecycle change of an upload session
type SessionEvent struct {
	events.BaseEvent
	SessionID        string          `json:"sessionId"`
	LoadType         string          `json:"loadType"`
	OriginalFilename string          `json:"originalFilename,omitempty"`
	Status           string          `json:"status"`
	RecordCount      int             `json:"recordCount"`
	ErrorCount       int             `json:"errorCount"`
	SubmittedBy      string          `json:"submittedBy,omitempty"`
	Summary          json.RawMessage `json:"summary,omitempty"`
}

func (e *SessionEvent) GetSubject() string {
	return e.EventType
}

func (e *SessionEvent) GetStream() string {
	return streamName
}

// Publisher wraps the shared events publisher for upload session events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher connects to NATS and makes sure the session stream exists
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "dataload-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := publisher.EnsureStream(ctx, streamName, []string{"dataload.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure DATALOAD_EVENTS stream")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "events.publisher"),
	}, nil
}

// PublishSession publishes the session's current state under the given event type
func (p *Publisher) PublishSession(ctx context.Context, eventType string, session *models.UploadSession) error {
	return p.publisher.Publish(ctx, NewSessionEvent(eventType, session))
}

// NewSessionEvent snapshots a session into an event
func NewSessionEvent(eventType string, session *models.UploadSession) *SessionEvent {
	return &SessionEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			TenantID:  session.TenantID,
			SourceID:  session.ID.String() + ":" + string(session.Status),
			Timestamp: time.Now().UTC(),
		},
		SessionID:        session.ID.String(),
		LoadType:         string(session.LoadType),
		OriginalFilename: session.OriginalFilename,
		Status:           string(session.Status),
		RecordCount:      session.RecordCount,
		ErrorCount:       session.ErrorCount,
		SubmittedBy:      session.SubmittedBy,
		Summary:          json.RawMessage(session.Summary),
	}
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *Publisher) Close() {
	p.publisher.Close()
}
