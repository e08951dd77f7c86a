package exchange

import (
	"strings"
)

// QuoteFilter 按计价币后缀筛选交易对
// 例: quote=USDT 时 BTCUSDT 保留，BTCBUSD / ETHBTC 丢弃
type QuoteFilter struct {
	suffix string
}

func NewQuoteFilter(quote string) *QuoteFilter {
	return &QuoteFilter{suffix: strings.ToUpper(strings.TrimSpace(quote))}
}

func (q *QuoteFilter) Quote() string {
	return q.suffix
}

// Match 交易对是否以计价币结尾（且不只是计价币本身）。空 quote 时全部保留
func (q *QuoteFilter) Match(symbol string) bool {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return false
	}
	if q.suffix == "" {
		return true
	}
	return len(sym) > len(q.suffix) && strings.HasSuffix(sym, q.suffix)
}

// Symbol2Coin 将交易对转换为币种
// 例: BTCUSDT -> BTC
func (q *QuoteFilter) Symbol2Coin(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if q.suffix == "" {
		return sym
	}
	return strings.TrimSuffix(sym, q.suffix)
}

// Coin2Symbol 将币种补全为交易对，已带计价币的保持不变
// 例: BTC -> BTCUSDT, ETHUSDT -> ETHUSDT
func (q *QuoteFilter) Coin2Symbol(coin string) string {
	c := strings.ToUpper(strings.TrimSpace(coin))
	if c == "" || q.Match(c) {
		return c
	}
	return c + q.suffix
}
