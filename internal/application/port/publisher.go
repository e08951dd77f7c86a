package port

import (
	"context"

	"xspread/internal/domain/model"
)

// Publisher mirrors the latest ranking to an external backend.
// Implementations keep only the current ranking, never history.
type Publisher interface {
	PublishRanking(ctx context.Context, r model.Ranking) error
	Close() error
}
