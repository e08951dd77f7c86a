package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
	dsvc "xspread/internal/domain/service"

	"github.com/rs/zerolog/log"
)

type PriceFeed = port.PriceFeed

type ServiceDeps struct {
	Feeds     []PriceFeed
	TopK      int
	Throttle  time.Duration
	Quote     string
	Sink      port.Sink
	Publisher port.Publisher
}

type Service struct {
	deps ServiceDeps
	st   *State
	th   *Throttle
	fmt  *Formatter

	// 最新一份 ranking，镜像 goroutine 只关心最新值
	latest chan model.Ranking

	now func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	if deps.TopK <= 0 {
		deps.TopK = dsvc.DefaultTopK
	}
	if deps.Publisher == nil {
		deps.Publisher = NewNoopPublisher()
	}
	s := &Service{
		deps:   deps,
		st:     NewState(),
		fmt:    NewFormatter(deps.Quote),
		latest: make(chan model.Ranking, 1),
		now:    time.Now,
	}
	s.th = NewThrottle(deps.Throttle, s.recompute)
	return s
}

// State exposes the price store.
func (s *Service) State() *State { return s.st }

// Rank joins both halves of the store and ranks the result.
func (s *Service) Rank() model.Ranking {
	records := s.st.Join()
	pos, neg := dsvc.Rank(records, s.deps.TopK)
	return model.Ranking{
		Positive:  pos,
		Negative:  neg,
		Tracked:   len(records),
		SpotCount: s.st.Len(model.MarketSpot),
		PerpCount: s.st.Len(model.MarketPerpetual),
		Ts:        s.now(),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Feeds) == 0 {
		return errors.New("no feeds")
	}
	if s.deps.Sink == nil {
		return errors.New("no sink")
	}

	// 任一 feed 订阅失败时，已启动的 feed 随 cancel 退出
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, feed := range s.deps.Feeds {
		ch, err := feed.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", feed.Name(), err)
		}
		wg.Add(1)
		go func(feed PriceFeed, in <-chan port.Batch) {
			defer wg.Done()
			s.consume(ctx, feed, in)
		}(feed, ch)

		log.Info().Str("feed", feed.Name()).Str("market", string(feed.Market())).Msg("feed started")
	}

	go s.mirror(ctx)

	<-ctx.Done()
	s.th.Close()
	wg.Wait()
	_ = s.deps.Sink.NewLine()
	return ctx.Err()
}

// consume 每个 batch 先整批写入，再通知一次 throttle
func (s *Service) consume(ctx context.Context, feed PriceFeed, in <-chan port.Batch) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				log.Warn().Str("feed", feed.Name()).Msg("feed channel closed")
				return
			}
			market := b.Market
			if market == "" {
				market = feed.Market()
			}
			s.st.Upsert(market, b.Tickers...)
			s.th.Notify()
		}
	}
}

func (s *Service) recompute() {
	r := s.Rank()
	if err := s.deps.Sink.WriteFrame(s.fmt.Render(r)); err != nil {
		log.Error().Err(err).Msg("write frame failed")
	}
	s.offer(r)
}

// offer 非阻塞地替换待镜像的 ranking，旧值直接丢弃
func (s *Service) offer(r model.Ranking) {
	select {
	case s.latest <- r:
		return
	default:
	}
	select {
	case <-s.latest:
	default:
	}
	select {
	case s.latest <- r:
	default:
	}
}

func (s *Service) mirror(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.latest:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := s.deps.Publisher.PublishRanking(pctx, r)
			cancel()
			if err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("publish ranking failed")
			}
		}
	}
}
