package pricefeed

import (
	"sort"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"
	"xspread/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

// Options 创建单个市场 feed 所需的参数
type Options struct {
	Market model.Market
	WsURL  string
	Quote  string
	Retry  exchange.RetryPolicy

	// 只对不提供全市场流的交易所有意义（bybit）
	Symbols []string
}

// factory函数类型
type Factory func(opts Options) port.PriceFeed

// registry maps exchange names to their respective price feed factories
var registry = make(map[string]Factory)

// Register 注册一个price feed factory
// 这是由各个交易所包的init()函数调用来自注册的
func Register(exchangeName string, factory Factory) {
	if factory == nil {
		log.Warn().Str("exchange", exchangeName).Msg("invalid price feed factory")
		return
	}
	if _, exists := registry[exchangeName]; exists {
		log.Warn().Str("exchange", exchangeName).Msg("price feed factory already registered, overwriting")
	}
	registry[exchangeName] = factory
	log.Debug().Str("exchange", exchangeName).Msg("price feed factory registered")
}

// Get 获取已注册的price feed factory
func Get(exchangeName string) (Factory, bool) {
	factory, ok := registry[exchangeName]
	return factory, ok
}

// Names lists registered exchanges, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
