package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
)

// HistoryRecorder turns issue events into audit rows. Deletions are not
// recorded because the rows go away with the issue.
type HistoryRecorder struct {
	history repository.IssueHistoryRepository
	logger  *zap.Logger
}

// NewHistoryRecorder builds the recorder.
func NewHistoryRecorder(history repository.IssueHistoryRepository, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{history: history, logger: logger}
}

// RegisterHandlers subscribes to events.
func (h *HistoryRecorder) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventIssueCreated, h.handleCreated)
	dispatcher.Subscribe(events.EventIssueAssigned, h.handleAssigned)
	dispatcher.Subscribe(events.EventIssueStatusChanged, h.handleStatusChanged)
}

func (h *HistoryRecorder) handleCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueCreatedPayload)
	if !ok {
		return nil
	}
	return h.record(ctx, event, domain.ChangeTypeCreated, map[string]any{}, map[string]any{
		"title":       payload.Title,
		"status":      payload.Status,
		"assigned_to": payload.AssignedTo,
	})
}

func (h *HistoryRecorder) handleAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueAssignedPayload)
	if !ok {
		return nil
	}
	return h.record(ctx, event, domain.ChangeTypeAssignee,
		map[string]any{"assigned_to": nil},
		map[string]any{"assigned_to": payload.TechnicianID, "status": payload.Status},
	)
}

func (h *HistoryRecorder) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueStatusChangedPayload)
	if !ok {
		return nil
	}
	return h.record(ctx, event, domain.ChangeTypeStatus,
		map[string]any{"status": payload.OldStatus},
		map[string]any{"status": payload.NewStatus},
	)
}

func (h *HistoryRecorder) record(ctx context.Context, event events.Event, change domain.IssueChangeType, oldValue, newValue map[string]any) error {
	err := h.history.Create(ctx, &domain.IssueHistory{
		IssueID:     event.IssueID,
		ChangedByID: event.ActorID,
		ChangeType:  change,
		OldValue:    oldValue,
		NewValue:    newValue,
	})
	if err != nil {
		h.logger.Error("record issue history",
			zap.String("issue_id", event.IssueID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	return err
}
