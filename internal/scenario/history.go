package scenario

import (
	"context"
	"fmt"

	"github.com/evcraddock/proptech-copilot/internal/audit"
)

// ChangeLog returns the user's audit entries, newest first.
func (s *Service) ChangeLog(ctx context.Context, userID string, f audit.Filter) ([]audit.Change, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	return s.ledger.Query(ctx, userID, f)
}

// ChangeStats summarizes the user's audit entries.
func (s *Service) ChangeStats(ctx context.Context, userID string) (*audit.Stats, error) {
	return s.ledger.Stats(ctx, userID)
}

// EntityHistory returns the timeline of one entity.
func (s *Service) EntityHistory(ctx context.Context, userID, entityType, entityID string, limit int) ([]audit.Change, error) {
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: entity type and id are required", ErrValidation)
	}
	return s.ledger.EntityHistory(ctx, userID, entityType, entityID, limit)
}

// CreateSession starts an editing session that groups later changes.
func (s *Service) CreateSession(ctx context.Context, userID, deviceInfo, ipAddress string) (*audit.Session, error) {
	return s.ledger.CreateSession(ctx, userID, deviceInfo, ipAddress)
}

// EndSession closes a session.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) (*audit.Session, error) {
	return s.ledger.EndSession(ctx, userID, sessionID)
}

// ListSessions returns the user's most recent sessions.
func (s *Service) ListSessions(ctx context.Context, userID string, limit int) ([]*audit.Session, error) {
	return s.ledger.ListSessions(ctx, userID, limit)
}

// SessionSummary returns a session with the changes made in it.
func (s *Service) SessionSummary(ctx context.Context, userID, sessionID string) (*audit.SessionSummary, error) {
	return s.ledger.Summary(ctx, userID, sessionID)
}
