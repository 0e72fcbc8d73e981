package news

import (
	"context"
	"errors"

	"github.com/deusflow/impactdigest/internal/logger"
)

// ErrNoUnseenCandidate means every candidate was already published.
var ErrNoUnseenCandidate = errors.New("no unseen candidate")

// Sequence yields candidates one at a time. Next reports false once the
// sequence is exhausted.
type Sequence interface {
	Next(ctx context.Context) (CandidateItem, bool)
}

// Select returns the first candidate whose identifier is not seen.
// It stops pulling from seq as soon as a match is found.
func Select(ctx context.Context, seq Sequence, seen func(id string) bool) (CandidateItem, error) {
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return CandidateItem{}, err
		}
		item, ok := seq.Next(ctx)
		if !ok {
			logger.Info("No unseen candidate found", "skipped", skipped)
			return CandidateItem{}, ErrNoUnseenCandidate
		}
		if seen(item.ID) {
			skipped++
			logger.Debug("Already published, skipping", "id", item.ID)
			continue
		}
		logger.Info("Selected candidate", "title", item.Title, "id", item.ID, "skipped", skipped)
		return item, nil
	}
}
