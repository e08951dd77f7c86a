package service

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"xspread/internal/domain/model"
)

func mustRecord(t *testing.T, symbol string, spot, perp float64) model.SpreadRecord {
	t.Helper()
	r, ok := NewSpreadRecord(symbol, spot, perp)
	if !ok {
		t.Fatalf("record %s %v/%v rejected", symbol, spot, perp)
	}
	return r
}

// TestSpreadRecordPositive 现货高于永续
func TestSpreadRecordPositive(t *testing.T) {
	r := mustRecord(t, "BTCUSDT", 100.0, 99.0)

	if r.AbsoluteDiff != 1.0 {
		t.Errorf("abs diff: expected 1.0, got %v", r.AbsoluteDiff)
	}
	want := 1.0 / 99.0 * 100
	if math.Abs(r.PercentDiff-want) > 1e-9 {
		t.Errorf("pct diff: expected %.6f, got %.6f", want, r.PercentDiff)
	}
	if math.Abs(r.PercentDiff-1.0101) > 1e-4 {
		t.Errorf("pct diff: expected ~1.0101, got %.6f", r.PercentDiff)
	}
}

// TestSpreadRecordNegative 现货低于永续
func TestSpreadRecordNegative(t *testing.T) {
	r := mustRecord(t, "ETHUSDT", 50.0, 51.0)
	if math.Abs(r.PercentDiff-(-1.9608)) > 1e-4 {
		t.Errorf("pct diff: expected ~-1.9608, got %.6f", r.PercentDiff)
	}
}

func TestSpreadRecordRejectsInvalidPrices(t *testing.T) {
	cases := []struct {
		name       string
		spot, perp float64
	}{
		{"zero perp", 10, 0},
		{"negative perp", 10, -1},
		{"zero spot", 0, 10},
		{"nan perp", 10, math.NaN()},
		{"inf spot", math.Inf(1), 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := NewSpreadRecord("XUSDT", tc.spot, tc.perp); ok {
				t.Errorf("expected %v/%v to be rejected", tc.spot, tc.perp)
			}
		})
	}
}

func TestRankOrderingAndZero(t *testing.T) {
	records := []model.SpreadRecord{
		mustRecord(t, "AUSDT", 101, 100),  // +1%
		mustRecord(t, "BUSDT", 103, 100),  // +3%
		mustRecord(t, "CUSDT", 100, 100),  // 0
		mustRecord(t, "DUSDT", 98, 100),   // -2%
		mustRecord(t, "EUSDT", 99.5, 100), // -0.5%
		mustRecord(t, "FUSDT", 102, 100),  // +2%
	}

	pos, neg := Rank(records, DefaultTopK)

	gotPos := symbols(pos)
	if !reflect.DeepEqual(gotPos, []string{"BUSDT", "FUSDT", "AUSDT"}) {
		t.Errorf("positive order: got %v", gotPos)
	}
	gotNeg := symbols(neg)
	if !reflect.DeepEqual(gotNeg, []string{"DUSDT", "EUSDT"}) {
		t.Errorf("negative order: got %v", gotNeg)
	}

	for i := 1; i < len(pos); i++ {
		if pos[i-1].PercentDiff <= pos[i].PercentDiff {
			t.Errorf("positive not strictly descending at %d", i)
		}
	}
	for i := 1; i < len(neg); i++ {
		if neg[i-1].PercentDiff >= neg[i].PercentDiff {
			t.Errorf("negative not strictly ascending at %d", i)
		}
	}
}

func TestRankTruncatesToK(t *testing.T) {
	var records []model.SpreadRecord
	for i := 1; i <= 15; i++ {
		records = append(records, mustRecord(t, fmt.Sprintf("S%02dUSDT", i), 100+float64(i), 100))
	}

	pos, neg := Rank(records, DefaultTopK)
	if len(pos) != 10 {
		t.Fatalf("expected 10 positive, got %d", len(pos))
	}
	if len(neg) != 0 {
		t.Errorf("expected no negative, got %d", len(neg))
	}
	if pos[0].Symbol != "S15USDT" || pos[9].Symbol != "S06USDT" {
		t.Errorf("unexpected head/tail: %s .. %s", pos[0].Symbol, pos[9].Symbol)
	}
}

func TestRankEmptyAndStableTies(t *testing.T) {
	pos, neg := Rank(nil, DefaultTopK)
	if len(pos) != 0 || len(neg) != 0 {
		t.Fatalf("expected empty lists, got %d/%d", len(pos), len(neg))
	}

	records := []model.SpreadRecord{
		mustRecord(t, "AUSDT", 101, 100),
		mustRecord(t, "BUSDT", 101, 100),
		mustRecord(t, "CUSDT", 101, 100),
	}
	first, _ := Rank(records, DefaultTopK)
	if !reflect.DeepEqual(symbols(first), []string{"AUSDT", "BUSDT", "CUSDT"}) {
		t.Errorf("ties should keep input order, got %v", symbols(first))
	}

	// 相同输入重复排名结果一致
	for i := 0; i < 5; i++ {
		again, _ := Rank(records, DefaultTopK)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("rank not idempotent on run %d", i)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	records := []model.SpreadRecord{
		mustRecord(t, "AUSDT", 101, 100),
		mustRecord(t, "BUSDT", 105, 100),
	}
	before := append([]model.SpreadRecord(nil), records...)
	_, _ = Rank(records, 1)
	if !reflect.DeepEqual(before, records) {
		t.Errorf("input slice modified")
	}
}

func symbols(rs []model.SpreadRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Symbol)
	}
	return out
}
