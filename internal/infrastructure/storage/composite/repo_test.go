package composite

import (
	"context"
	"errors"
	"testing"

	"xspread/internal/domain/model"
)

type stubPublisher struct {
	calls  int
	closed bool
	err    error
}

func (s *stubPublisher) PublishRanking(ctx context.Context, r model.Ranking) error {
	s.calls++
	return s.err
}

func (s *stubPublisher) Close() error {
	s.closed = true
	return s.err
}

func TestCompositeFansOut(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{err: errors.New("down")}
	c := &stubPublisher{}
	repo := New(a, nil, b, c)

	if repo.Len() != 3 {
		t.Fatalf("nil publisher should be dropped, got %d", repo.Len())
	}

	err := repo.PublishRanking(context.Background(), model.Ranking{Tracked: 1})
	if err == nil || err.Error() != "down" {
		t.Errorf("expected first error, got %v", err)
	}
	// 一个后端失败不影响其他后端
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("unexpected calls: %d %d %d", a.calls, b.calls, c.calls)
	}

	_ = repo.Close()
	if !a.closed || !b.closed || !c.closed {
		t.Errorf("all publishers should be closed")
	}
}
