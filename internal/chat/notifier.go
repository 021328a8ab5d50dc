package chat

import (
	"context"

	"groupouting/backend/internal/models"
)

// Notifier delivers room events to whoever is listening. Delivery is best effort:
// services log a failed Publish and carry on.
type Notifier interface {
	Publish(ctx context.Context, roomID string, event models.Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, string, models.Event) error { return nil }
