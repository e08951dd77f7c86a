package binance

import (
	"xspread/internal/application/port"
	"xspread/internal/infrastructure/pricefeed"
)

// init() automatically registers Binance WebSocket price feed factory
func init() {
	pricefeed.Register(ExchangeName, func(opts pricefeed.Options) port.PriceFeed {
		return NewTickerFeed(opts)
	})
}
