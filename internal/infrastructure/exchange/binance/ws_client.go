package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
	"xspread/internal/infrastructure/exchange"
	"xspread/internal/infrastructure/pricefeed"

	"github.com/rs/zerolog/log"
)

const ExchangeName = "binance"

// TickerFeed 订阅 Binance 全市场 24hr ticker 流（!ticker@arr），现货和永续各一个实例
type TickerFeed struct {
	market model.Market
	wsURL  string // e.g. wss://fstream.binance.com/ws/!ticker@arr
	filter *exchange.QuoteFilter
	retry  exchange.RetryPolicy
}

func NewTickerFeed(opts pricefeed.Options) *TickerFeed {
	return &TickerFeed{
		market: opts.Market,
		wsURL:  strings.TrimSpace(opts.WsURL),
		filter: exchange.NewQuoteFilter(opts.Quote),
		retry:  opts.Retry,
	}
}

func (f *TickerFeed) Name() string {
	return ExchangeName + "-" + strings.ToLower(string(f.market))
}

func (f *TickerFeed) Market() model.Market { return f.market }

// tickerItem 只声明用到的字段；大小写成对的 key（c/C、p/P）都要声明，
// 否则 encoding/json 的大小写不敏感匹配会把另一个 key 写进来
type tickerItem struct {
	Event         string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	PriceChange   string `json:"p"`
	ChangePercent string `json:"P"`
	LastPrice     string `json:"c"`
	CloseTime     int64  `json:"C"`
}

// tickerList: 裸数组、combined stream 包装 {"stream":..,"data":[...]}、或单个 ticker 对象
type tickerList []tickerItem

func (d *tickerList) UnmarshalJSON(b []byte) error {
	b = exchange.BytesTrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*d = nil
		return nil
	}
	switch b[0] {
	case '[':
		var arr []tickerItem
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*d = arr
		return nil
	case '{':
		var wrapped struct {
			Stream string          `json:"stream"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		if len(wrapped.Data) > 0 {
			return d.UnmarshalJSON(wrapped.Data)
		}
		var one tickerItem
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		if one.Symbol == "" {
			return errors.New("object without symbol")
		}
		*d = tickerList{one}
		return nil
	default:
		return fmt.Errorf("unexpected ticker json: %.64s", string(b))
	}
}

// Decode 把一条入站消息转成一个 Batch：按计价币过滤，数值解析失败的记录丢弃并计数
func (f *TickerFeed) Decode(data []byte) (port.Batch, error) {
	var items tickerList
	if err := exchange.ParseJSON(data, &items); err != nil {
		return port.Batch{}, err
	}

	b := port.Batch{
		Market:  f.market,
		Tickers: make([]model.Ticker, 0, len(items)),
		Ts:      time.Now().UnixMilli(),
	}
	var firstErr error
	for _, it := range items {
		if !f.filter.Match(it.Symbol) {
			continue
		}
		px, err := strconv.ParseFloat(strings.TrimSpace(it.LastPrice), 64)
		if err != nil {
			b.Rejected++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s last price %q: %w", it.Symbol, it.LastPrice, err)
			}
			continue
		}
		chg, err := strconv.ParseFloat(strings.TrimSpace(it.ChangePercent), 64)
		if err != nil {
			b.Rejected++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s change percent %q: %w", it.Symbol, it.ChangePercent, err)
			}
			continue
		}
		b.Tickers = append(b.Tickers, model.Ticker{
			Symbol:        strings.ToUpper(strings.TrimSpace(it.Symbol)),
			Price:         px,
			ChangePercent: chg,
		})
	}
	if b.Rejected > 0 {
		log.Warn().Str("feed", f.Name()).Int("rejected", b.Rejected).Err(firstErr).Msg("ticker records dropped")
	}
	return b, nil
}

func (f *TickerFeed) Subscribe(ctx context.Context) (<-chan port.Batch, error) {
	if f.wsURL == "" {
		return nil, errors.New("binance ws_url empty")
	}
	if f.market != model.MarketSpot && f.market != model.MarketPerpetual {
		return nil, fmt.Errorf("binance: unsupported market %q", f.market)
	}

	out := make(chan port.Batch, 64)
	go f.run(ctx, out)
	return out, nil
}

func (f *TickerFeed) run(ctx context.Context, out chan<- port.Batch) {
	defer close(out)

	exchange.Reconnect(ctx, f.Name(), f.retry, func(ctx context.Context, connected func()) error {
		log.Info().Str("feed", f.Name()).Str("url", f.wsURL).Msg("ws connecting")
		conn, err := exchange.Dial(ctx, f.wsURL)
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			return err
		}
		defer conn.Close()

		connected()
		log.Info().Str("feed", f.Name()).Msg("ws connected")

		return exchange.ReadLoop(ctx, conn, func(data []byte) {
			b, err := f.Decode(data)
			if err != nil {
				// 坏消息只丢弃，不断开连接
				log.Error().Str("feed", f.Name()).Err(err).Msg("malformed ticker batch")
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		})
	})
}
