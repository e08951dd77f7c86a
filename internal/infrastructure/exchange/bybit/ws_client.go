package bybit

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

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const ExchangeName = "bybit"

const (
	// 现货一次 subscribe 最多 10 个 topic
	maxTopicsPerReq   = 10
	heartbeatInterval = 20 * time.Second
)

// TickerFeed 订阅 Bybit v5 tickers.<SYMBOL>。Bybit 没有全市场 ticker 流，
// 必须给出交易对列表
type TickerFeed struct {
	market  model.Market
	wsURL   string // e.g. wss://stream.bybit.com/v5/public/linear
	filter  *exchange.QuoteFilter
	symbols []string
	retry   exchange.RetryPolicy

	// linear 的 delta 推送可能不带 price24hPcnt，沿用上一次的值。
	// Decode 只在读协程里调用
	lastPcnt map[string]float64
}

func NewTickerFeed(opts pricefeed.Options) *TickerFeed {
	filter := exchange.NewQuoteFilter(opts.Quote)
	seen := make(map[string]struct{}, len(opts.Symbols))
	symbols := make([]string, 0, len(opts.Symbols))
	for _, s := range opts.Symbols {
		sym := filter.Coin2Symbol(s)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	return &TickerFeed{
		market:   opts.Market,
		wsURL:    strings.TrimSpace(opts.WsURL),
		filter:   filter,
		symbols:  symbols,
		retry:    opts.Retry,
		lastPcnt: make(map[string]float64),
	}
}

func (f *TickerFeed) Name() string {
	return ExchangeName + "-" + strings.ToLower(string(f.market))
}

func (f *TickerFeed) Market() model.Market { return f.market }

type bybitSubReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type bybitTickerItem struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Price24hPcnt string `json:"price24hPcnt"`
}

// data can be object OR array
type bybitDataList []bybitTickerItem

func (d *bybitDataList) UnmarshalJSON(b []byte) error {
	b = exchange.BytesTrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*d = nil
		return nil
	}
	switch b[0] {
	case '[':
		var arr []bybitTickerItem
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*d = arr
		return nil
	case '{':
		var one bybitTickerItem
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*d = bybitDataList{one}
		return nil
	default:
		return fmt.Errorf("unexpected data json: %.64s", string(b))
	}
}

type bybitTickerMsg struct {
	Topic string        `json:"topic"`
	Type  string        `json:"type"`
	Ts    int64         `json:"ts"`
	Data  bybitDataList `json:"data"`

	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Op      string `json:"op,omitempty"`
}

// Decode 解析一条推送。ok=false 表示控制消息（订阅回执、pong），不产生 Batch
func (f *TickerFeed) Decode(data []byte) (b port.Batch, ok bool, err error) {
	var msg bybitTickerMsg
	if err := exchange.ParseJSON(data, &msg); err != nil {
		return port.Batch{}, false, err
	}

	// ack / pong
	if msg.Success != nil {
		if !*msg.Success {
			log.Error().Str("feed", f.Name()).Str("op", msg.Op).Str("ret_msg", msg.RetMsg).Msg("request not success")
		}
		return port.Batch{}, false, nil
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") {
		return port.Batch{}, false, fmt.Errorf("unexpected message: %.64s", string(data))
	}

	b = port.Batch{
		Market:  f.market,
		Tickers: make([]model.Ticker, 0, len(msg.Data)),
		Ts:      msg.Ts,
	}
	if b.Ts == 0 {
		b.Ts = time.Now().UnixMilli()
	}
	var firstErr error
	for _, it := range msg.Data {
		sym := strings.ToUpper(strings.TrimSpace(it.Symbol))
		if !f.filter.Match(sym) {
			continue
		}
		pxs := strings.TrimSpace(it.LastPrice)
		if pxs == "" {
			// delta 里价格没变
			continue
		}
		px, err := strconv.ParseFloat(pxs, 64)
		if err != nil {
			b.Rejected++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s last price %q: %w", sym, pxs, err)
			}
			continue
		}
		chg := f.lastPcnt[sym]
		if s := strings.TrimSpace(it.Price24hPcnt); s != "" {
			// price24hPcnt 是小数，0.0123 = 1.23%
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				b.Rejected++
				if firstErr == nil {
					firstErr = fmt.Errorf("%s price24hPcnt %q: %w", sym, s, err)
				}
				continue
			}
			chg = v * 100
			f.lastPcnt[sym] = chg
		}
		b.Tickers = append(b.Tickers, model.Ticker{Symbol: sym, Price: px, ChangePercent: chg})
	}
	if b.Rejected > 0 {
		log.Warn().Str("feed", f.Name()).Int("rejected", b.Rejected).Err(firstErr).Msg("ticker records dropped")
	}
	return b, true, nil
}

// topics 按每个请求的上限切分
func (f *TickerFeed) topics() [][]string {
	var reqs [][]string
	for i := 0; i < len(f.symbols); i += maxTopicsPerReq {
		end := min(i+maxTopicsPerReq, len(f.symbols))
		args := make([]string, 0, end-i)
		for _, sym := range f.symbols[i:end] {
			args = append(args, "tickers."+sym)
		}
		reqs = append(reqs, args)
	}
	return reqs
}

func (f *TickerFeed) Subscribe(ctx context.Context) (<-chan port.Batch, error) {
	if f.wsURL == "" {
		return nil, errors.New("bybit ws_url empty")
	}
	if f.market != model.MarketSpot && f.market != model.MarketPerpetual {
		return nil, fmt.Errorf("bybit: unsupported market %q", f.market)
	}
	if len(f.symbols) == 0 {
		return nil, errors.New("no valid symbols for bybit topics")
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

		// subscribe
		for _, args := range f.topics() {
			if err := conn.WriteJSON(bybitSubReq{Op: "subscribe", Args: args}); err != nil {
				log.Error().Str("feed", f.Name()).Err(err).Msg("subscribe failed")
				return err
			}
		}

		connected()
		log.Info().Str("feed", f.Name()).Int("symbols", len(f.symbols)).Msg("ws connected & subscribed")

		hbCtx, stopHeartbeat := context.WithCancel(ctx)
		defer stopHeartbeat()
		go heartbeat(hbCtx, conn)

		return exchange.ReadLoop(ctx, conn, func(data []byte) {
			b, ok, err := f.Decode(data)
			if err != nil {
				log.Error().Str("feed", f.Name()).Err(err).Msg("malformed ticker batch")
				return
			}
			if !ok {
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		})
	})
}

// heartbeat Bybit 要求应用层 {"op":"ping"}，协议层 ping 不算
func heartbeat(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteJSON(bybitSubReq{Op: "ping"}); err != nil {
				return
			}
		}
	}
}
