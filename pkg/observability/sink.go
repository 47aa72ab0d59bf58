package observability

import (
	"context"

	"github.com/chronicler-labs/chronicler/core/pkg/audit"
	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// Sink returns an audit.Logger that mirrors the event stream into the
// provider's counters. Events it does not count pass through untouched.
func (p *Provider) Sink() audit.Logger {
	return sink{p}
}

type sink struct {
	p *Provider
}

func (s sink) Record(ctx context.Context, eventType audit.EventType, subjectID string, payload map[string]any) error {
	switch eventType {
	case audit.EventActionLogged:
		s.p.RecordActionLogged(ctx, subjectID)
	case audit.EventBatchSealed:
		var count int64
		if batch, ok := payload["batch"].(contracts.BatchCommitment); ok {
			count = batch.ActionCount
		}
		s.p.RecordBatchSealed(ctx, count)
	case audit.EventAccessDenied, audit.EventRateLimitExceeded:
		reason, _ := payload["reason"].(string)
		s.p.RecordAccessDenied(ctx, reason)
	}
	return nil
}
