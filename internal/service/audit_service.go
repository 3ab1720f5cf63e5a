package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditEvent is what the live security feed receives for every recorded entry.
type AuditEvent struct {
	Type   string    `json:"type"`
	Action string    `json:"action"`
	UserID string    `json:"user_id,omitempty"`
	Entity string    `json:"entity,omitempty"`
	At     time.Time `json:"at"`
}

// EventPublisher receives encoded audit events; the websocket hub implements it.
type EventPublisher interface {
	Publish(msg []byte)
}

type AuditService interface {
	// Record writes the entry; inside RunInTx it commits with the caller's change.
	Record(ctx context.Context, entry *model.AuditLog) error
	// Publish forwards already committed entries to the live feed.
	Publish(entries ...*model.AuditLog)
	GetAuditLogs(ctx context.Context, filter repository.AuditFilter, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo      repository.AuditRepository
	publisher EventPublisher
	logger    *slog.Logger
}

// NewAuditService creates a new AuditService instance. publisher may be nil.
func NewAuditService(repo repository.AuditRepository, publisher EventPublisher, logger *slog.Logger) AuditService {
	return &auditService{repo: repo, publisher: publisher, logger: logger}
}

// newAuditEntry builds an entry with details serialized to JSON.
func newAuditEntry(userID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) *model.AuditLog {
	return &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    detailsJSON(details),
	}
}

func detailsJSON(details map[string]interface{}) string {
	if details == nil {
		return "{}"
	}
	raw, _ := json.Marshal(details)
	return string(raw)
}

func (s *auditService) Record(ctx context.Context, entry *model.AuditLog) error {
	return s.repo.Log(ctx, entry)
}

func (s *auditService) Publish(entries ...*model.AuditLog) {
	if s.publisher == nil {
		return
	}
	for _, e := range entries {
		event := AuditEvent{
			Type:   "AUDIT",
			Action: e.Action,
			Entity: e.EntityID,
			At:     e.CreatedAt,
		}
		if e.UserID != nil {
			event.UserID = e.UserID.String()
		}
		msg, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("failed to encode audit event", "action", e.Action, "error", err)
			continue
		}
		s.publisher.Publish(msg)
	}
}

// GetAuditLogs returns a page of entries, newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, filter repository.AuditFilter, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userID := ""
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}
