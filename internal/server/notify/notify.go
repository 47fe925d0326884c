// Package notify emits events consumed by the external delivery component.
package notify

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

// ShareEvent announces that a file was shared with a contact.
type ShareEvent struct {
	FileID  string
	OwnerID string
	Contact string
	// Link is the public link token, empty when the file is not public.
	Link string
}

type Notifier interface {
	ShareCreated(ctx context.Context, e ShareEvent) error
}

// LogNotifier records events in the log. It is the default when no
// delivery component is attached.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "notify")}
}

func (n *LogNotifier) ShareCreated(ctx context.Context, e ShareEvent) error {
	n.logger.Info(ctx, "share created", "file_id", e.FileID, "owner_id", e.OwnerID, "contact", e.Contact, "public", e.Link != "")
	return nil
}
