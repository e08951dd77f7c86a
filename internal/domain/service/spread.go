package service

import (
	"math"
	"sort"

	"xspread/internal/domain/model"
)

// DefaultTopK is the length of each ranked list.
const DefaultTopK = 10

func Delta(spot, perp float64) float64 {
	return spot - perp
}

func DeltaColor(pct float64) int {
	// -1 red, 0 yellow, +1 green (pure decision)
	switch {
	case pct > 0:
		return +1
	case pct < 0:
		return -1
	default:
		return 0
	}
}

// NewSpreadRecord builds the spread of one symbol. ok is false when either
// price is zero, negative or not finite; such records never reach the ranking.
func NewSpreadRecord(symbol string, spot, perp float64) (model.SpreadRecord, bool) {
	if !validPrice(spot) || !validPrice(perp) {
		return model.SpreadRecord{}, false
	}
	d := Delta(spot, perp)
	pct := d / perp * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return model.SpreadRecord{}, false
	}
	return model.SpreadRecord{
		Symbol:       symbol,
		SpotPrice:    spot,
		PerpPrice:    perp,
		AbsoluteDiff: d,
		PercentDiff:  pct,
	}, true
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// Rank splits records by the sign of PercentDiff and keeps the k most extreme
// of each side: positive descending, negative ascending (most negative first).
// A record with PercentDiff exactly 0 lands in neither list. Equal values keep
// their input order.
func Rank(records []model.SpreadRecord, k int) (positive, negative []model.SpreadRecord) {
	if k <= 0 {
		return nil, nil
	}

	positive = make([]model.SpreadRecord, 0, len(records))
	negative = make([]model.SpreadRecord, 0, len(records))
	for _, r := range records {
		switch {
		case r.PercentDiff > 0:
			positive = append(positive, r)
		case r.PercentDiff < 0:
			negative = append(negative, r)
		}
	}

	sort.SliceStable(positive, func(i, j int) bool { return positive[i].PercentDiff > positive[j].PercentDiff })
	sort.SliceStable(negative, func(i, j int) bool { return negative[i].PercentDiff < negative[j].PercentDiff })

	if len(positive) > k {
		positive = positive[:k]
	}
	if len(negative) > k {
		negative = negative[:k]
	}
	return positive, negative
}
