package port

import (
	"context"

	"xspread/internal/domain/model"
)

// Batch 一条入站消息解析后的结果，每条消息只产生一个 Batch
type Batch struct {
	Market   model.Market
	Tickers  []model.Ticker
	Rejected int   // 数值解析失败被丢弃的记录数
	Ts       int64 // unix ms
}

type PriceFeed interface {
	Name() string
	Market() model.Market
	Subscribe(ctx context.Context) (<-chan Batch, error)
}
