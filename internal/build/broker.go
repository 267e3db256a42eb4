package build

import "context"

// Broker announces finished builds.
type Broker interface {
	PublishFinished(ctx context.Context, event *FinishedEvent) error
}

// FinishedEvent is published once per recorded build.
type FinishedEvent struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	Format    Format `json:"format"`
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
	URL       string `json:"url,omitempty"`
}
