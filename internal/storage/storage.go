package storage

import (
	"context"

	"github.com/rowantis/kura-alert/internal/model"
)

// Sink persists dispatched alerts.
type Sink interface {
	Record(ctx context.Context, rec model.AlertRecord) error
}
