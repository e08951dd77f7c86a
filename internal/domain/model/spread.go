package model

import "time"

// Market 行情市场（现货 / 永续），决定写入 Price Store 的哪一半
type Market string

const (
	MarketSpot      Market = "SPOT"
	MarketPerpetual Market = "PERP"
)

// Ticker 单个交易对的最新行情快照
type Ticker struct {
	Symbol        string  `json:"symbol"`         // e.g. BTCUSDT
	Price         float64 `json:"price"`          // last traded price
	ChangePercent float64 `json:"change_percent"` // 24h 涨跌幅，仅展示用
}

// SpreadRecord 现货与永续之间的价差，只在一次排名周期内存在
type SpreadRecord struct {
	Symbol       string  `json:"symbol"`
	SpotPrice    float64 `json:"spot_price"`
	PerpPrice    float64 `json:"perp_price"`
	AbsoluteDiff float64 `json:"abs_diff"` // spot - perp
	PercentDiff  float64 `json:"pct_diff"` // abs_diff / perp * 100
}

// Ranking 一次重算的结果：正负价差各取前 K，交给渲染器和镜像
type Ranking struct {
	Positive  []SpreadRecord `json:"positive"`
	Negative  []SpreadRecord `json:"negative"`
	Tracked   int            `json:"tracked"` // 两边都有有效价格的交易对数
	SpotCount int            `json:"spot_count"`
	PerpCount int            `json:"perp_count"`
	Ts        time.Time      `json:"ts"`
}
