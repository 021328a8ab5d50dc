package chathub

import (
	"context"
	"errors"

	"groupouting/backend/internal/chat"
	"groupouting/backend/internal/models"
)

// Notifiers publishes to each notifier in turn. Every notifier is tried; the errors
// are joined.
type Notifiers []chat.Notifier

func (ns Notifiers) Publish(ctx context.Context, roomID string, event models.Event) error {
	var errs []error
	for _, n := range ns {
		if err := n.Publish(ctx, roomID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
