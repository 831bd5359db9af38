package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
)

func TestNotificationService_EmailsAssignedTechnician(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{
		EmailFrom:  "noreply@example.com",
		WebhookURL: "https://hooks.example.com/issues",
	}).RegisterHandlers()

	event := events.NewEvent(events.EventIssueAssigned, "issue-1", "admin-1", time.Now(), events.IssueAssignedPayload{
		TechnicianID:    "tech-1",
		TechnicianEmail: "tech@example.com",
		Status:          "in_progress",
	})
	require.NoError(t, dispatcher.Publish(context.Background(), event))

	emails := logs.FilterMessage("sendEmailNotificationStub").All()
	require.Len(t, emails, 1)
	assert.Equal(t, "tech@example.com", emails[0].ContextMap()["to"])
	assert.Equal(t, 1, logs.FilterMessage("sendWebhookNotificationStub").Len())
}

func TestNotificationService_SkipsUnconfiguredChannels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{}).RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(),
		events.NewEvent(events.EventIssueDeleted, "issue-1", "admin-1", time.Now(), events.IssueDeletedPayload{Title: "gone"})))

	assert.Equal(t, 1, logs.FilterMessage("IssueDeleted").Len())
	assert.Zero(t, logs.FilterMessage("sendWebhookNotificationStub").Len())
}
