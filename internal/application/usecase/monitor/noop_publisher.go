package monitor

import (
	"context"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
)

type noopPublisher struct{}

func NewNoopPublisher() port.Publisher { return &noopPublisher{} }

func (n *noopPublisher) PublishRanking(ctx context.Context, r model.Ranking) error {
	return nil
}

func (n *noopPublisher) Close() error { return nil }
