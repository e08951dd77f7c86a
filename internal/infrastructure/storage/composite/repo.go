package composite

import (
	"context"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
)

type Repo struct {
	repos []port.Publisher
}

func New(repos ...port.Publisher) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Publisher, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) PublishRanking(ctx context.Context, rk model.Ranking) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.PublishRanking(ctx, rk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Publisher = (*Repo)(nil)
