package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
)

type fakeFeed struct {
	name   string
	market model.Market
	ch     chan port.Batch
	err    error
}

func newFakeFeed(name string, m model.Market) *fakeFeed {
	return &fakeFeed{name: name, market: m, ch: make(chan port.Batch, 16)}
}

func (f *fakeFeed) Name() string         { return f.name }
func (f *fakeFeed) Market() model.Market { return f.market }
func (f *fakeFeed) Subscribe(ctx context.Context) (<-chan port.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type captureSink struct {
	mu     sync.Mutex
	frames []string
	notify chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{notify: make(chan struct{}, 128)}
}

func (c *captureSink) WriteFrame(frame string) error {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *captureSink) NewLine() error { return nil }

func (c *captureSink) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return ""
	}
	return c.frames[len(c.frames)-1]
}

// waitFor 等到最新一帧满足条件
func (c *captureSink) waitFor(t *testing.T, cond func(string) bool) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if f := c.last(); cond(f) {
			return f
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("condition never met, last frame:\n%s", c.last())
		}
	}
}

type capturePublisher struct {
	mu  sync.Mutex
	got []model.Ranking
}

func (p *capturePublisher) PublishRanking(ctx context.Context, r model.Ranking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, r)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) latest() (model.Ranking, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.got) == 0 {
		return model.Ranking{}, false
	}
	return p.got[len(p.got)-1], true
}

func TestServiceRunRendersRanking(t *testing.T) {
	spot := newFakeFeed("binance", model.MarketSpot)
	perp := newFakeFeed("binance", model.MarketPerpetual)
	sink := newCaptureSink()
	pub := &capturePublisher{}

	svc := NewService(ServiceDeps{
		Feeds:     []PriceFeed{spot, perp},
		Throttle:  20 * time.Millisecond,
		Sink:      sink,
		Publisher: pub,
	})
	svc.fmt.Color = false

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	spot.ch <- port.Batch{Market: model.MarketSpot, Tickers: []model.Ticker{
		{Symbol: "BTCUSDT", Price: 100},
		{Symbol: "ETHUSDT", Price: 50},
		{Symbol: "AAAUSDT", Price: 10},
	}}
	perp.ch <- port.Batch{Market: model.MarketPerpetual, Tickers: []model.Ticker{
		{Symbol: "BTCUSDT", Price: 99},
		{Symbol: "ETHUSDT", Price: 51},
	}}

	frame := sink.waitFor(t, func(f string) bool {
		return strings.Contains(f, "pairs tracked: 2")
	})
	if !strings.Contains(frame, "BTCUSDT") || !strings.Contains(frame, "+1.0101%") {
		t.Errorf("BTCUSDT premium missing:\n%s", frame)
	}
	if !strings.Contains(frame, "ETHUSDT") || !strings.Contains(frame, "-1.9608%") {
		t.Errorf("ETHUSDT discount missing:\n%s", frame)
	}
	if strings.Contains(frame, "AAAUSDT") {
		t.Errorf("spot-only symbol must not be ranked:\n%s", frame)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if r, ok := pub.latest(); ok && r.Tracked == 2 {
			if len(r.Positive) != 1 || r.Positive[0].Symbol != "BTCUSDT" {
				t.Errorf("unexpected mirrored positive list: %+v", r.Positive)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ranking never mirrored")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestServiceKeepsStateWhenFeedStops feed 断开后旧价格仍然可读，直到被新数据覆盖
func TestServiceKeepsStateWhenFeedStops(t *testing.T) {
	spot := newFakeFeed("binance", model.MarketSpot)
	perp := newFakeFeed("binance", model.MarketPerpetual)
	sink := newCaptureSink()

	svc := NewService(ServiceDeps{
		Feeds:    []PriceFeed{spot, perp},
		Throttle: 10 * time.Millisecond,
		Sink:     sink,
	})
	svc.fmt.Color = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	spot.ch <- port.Batch{Market: model.MarketSpot, Tickers: []model.Ticker{{Symbol: "BTCUSDT", Price: 100}}}
	perp.ch <- port.Batch{Market: model.MarketPerpetual, Tickers: []model.Ticker{{Symbol: "BTCUSDT", Price: 99}}}
	sink.waitFor(t, func(f string) bool { return strings.Contains(f, "pairs tracked: 1") })

	close(perp.ch)
	spot.ch <- port.Batch{Market: model.MarketSpot, Tickers: []model.Ticker{{Symbol: "BTCUSDT", Price: 101}}}

	frame := sink.waitFor(t, func(f string) bool { return strings.Contains(f, "+2.0202%") })
	if !strings.Contains(frame, "pairs tracked: 1") {
		t.Errorf("perp price should survive the closed feed:\n%s", frame)
	}
	if got, ok := svc.State().Get(model.MarketPerpetual, "BTCUSDT"); !ok || got.Price != 99 {
		t.Errorf("perp entry lost: %+v %v", got, ok)
	}
}

func TestServiceRunErrors(t *testing.T) {
	ctx := context.Background()

	if err := NewService(ServiceDeps{Sink: newCaptureSink()}).Run(ctx); err == nil {
		t.Error("expected error without feeds")
	}

	bad := newFakeFeed("binance", model.MarketSpot)
	bad.err = errors.New("boom")
	if err := NewService(ServiceDeps{Feeds: []PriceFeed{bad}, Sink: newCaptureSink()}).Run(ctx); err == nil {
		t.Error("expected subscribe error")
	}
}

func TestServiceRankTopK(t *testing.T) {
	svc := NewService(ServiceDeps{TopK: 3})
	for i, sym := range []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT", "EUSDT"} {
		svc.State().Upsert(model.MarketSpot, model.Ticker{Symbol: sym, Price: 100 + float64(i+1)})
		svc.State().Upsert(model.MarketPerpetual, model.Ticker{Symbol: sym, Price: 100})
	}
	r := svc.Rank()
	if r.Tracked != 5 {
		t.Errorf("tracked: expected 5, got %d", r.Tracked)
	}
	if len(r.Positive) != 3 || r.Positive[0].Symbol != "EUSDT" {
		t.Errorf("unexpected positive list: %+v", r.Positive)
	}
	if len(r.Negative) != 0 {
		t.Errorf("unexpected negative list: %+v", r.Negative)
	}
}
