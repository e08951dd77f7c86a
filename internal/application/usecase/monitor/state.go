package monitor

import (
	"sort"
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"

	"xspread/internal/domain/model"
	dsvc "xspread/internal/domain/service"
)

// State 是 Price Store：现货、永续各一张 symbol -> Ticker 表。
// 每一半各自保证并发安全；两半之间不做原子快照，排名时允许看到略旧的组合。
type State struct {
	spot cmap.ConcurrentMap[string, model.Ticker]
	perp cmap.ConcurrentMap[string, model.Ticker]
}

func NewState() *State {
	return &State{
		spot: cmap.New[model.Ticker](),
		perp: cmap.New[model.Ticker](),
	}
}

func (s *State) half(m model.Market) (cmap.ConcurrentMap[string, model.Ticker], bool) {
	switch m {
	case model.MarketSpot:
		return s.spot, true
	case model.MarketPerpetual:
		return s.perp, true
	default:
		return cmap.ConcurrentMap[string, model.Ticker]{}, false
	}
}

// Upsert 写入一批行情，同一 symbol 后写覆盖前写。返回实际写入条数。
func (s *State) Upsert(m model.Market, tickers ...model.Ticker) int {
	h, ok := s.half(m)
	if !ok {
		return 0
	}
	n := 0
	for _, t := range tickers {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			continue
		}
		t.Symbol = sym
		h.Set(sym, t)
		n++
	}
	return n
}

func (s *State) Get(m model.Market, symbol string) (model.Ticker, bool) {
	h, ok := s.half(m)
	if !ok {
		return model.Ticker{}, false
	}
	return h.Get(strings.ToUpper(strings.TrimSpace(symbol)))
}

// Len 某一半当前持有的 symbol 数
func (s *State) Len(m model.Market) int {
	h, ok := s.half(m)
	if !ok {
		return 0
	}
	return h.Count()
}

// Join 以现货表为主按 symbol 升序遍历，与永续表关联出价差记录。
// 只在一边出现的 symbol、价格无效的记录都被跳过。
func (s *State) Join() []model.SpreadRecord {
	spot := s.spot.Items()

	syms := make([]string, 0, len(spot))
	for sym := range spot {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	out := make([]model.SpreadRecord, 0, len(syms))
	for _, sym := range syms {
		pt, ok := s.perp.Get(sym)
		if !ok {
			continue
		}
		rec, ok := dsvc.NewSpreadRecord(sym, spot[sym].Price, pt.Price)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}
