package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNotionalAndMargin(t *testing.T) {
	notional := domain.Notional(dec("0.05"), dec("100000"))
	assert.True(t, notional.Equal(dec("5000")), "notional = %s", notional)

	margin := domain.MarginRequired(notional, dec("2"))
	assert.True(t, margin.Equal(dec("2500")), "margin = %s", margin)
}

func TestUnrealizedPnL(t *testing.T) {
	tests := []struct {
		name    string
		side    domain.PositionSide
		qty     string
		entry   string
		current string
		want    string
	}{
		{"long up", domain.SideLong, "0.05", "100000", "105000", "250"},
		{"long down", domain.SideLong, "0.05", "100000", "95000", "-250"},
		{"short down", domain.SideShort, "1", "4000", "3800", "200"},
		{"short up", domain.SideShort, "1", "4000", "4200", "-200"},
		{"flat", domain.SideLong, "2", "50", "50", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.UnrealizedPnL(tt.side, dec(tt.qty), dec(tt.entry), dec(tt.current))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestPnLPct(t *testing.T) {
	assert.True(t, domain.PnLPct(dec("250"), dec("5000")).Equal(dec("5")))
	assert.True(t, domain.PnLPct(dec("100"), decimal.Zero).IsZero(), "zero base yields zero")
}

func TestMarginLevel(t *testing.T) {
	level := domain.MarginLevel(dec("10250"), dec("2500"))
	assert.True(t, level.Equal(dec("410")), "level = %s", level)

	// No margin in use: sentinel, callers persist nil instead.
	assert.True(t, domain.MarginLevel(dec("10000"), decimal.Zero).Equal(domain.MarginLevelInfinite))
}

func TestCurrentLeverage(t *testing.T) {
	assert.True(t, domain.CurrentLeverage(dec("5000"), dec("10000")).Equal(dec("0.5")))
	assert.True(t, domain.CurrentLeverage(dec("5000"), decimal.Zero).IsZero())
}

func TestCheckLiquidation(t *testing.T) {
	// max_leverage 10 → initial 10%, maintenance 5% → threshold 50%.
	maint, initial := dec("5"), dec("10")

	assert.True(t, domain.CheckLiquidation(dec("40"), maint, initial), "40% < 50% liquidates")
	assert.False(t, domain.CheckLiquidation(dec("50"), maint, initial), "exactly at threshold survives")
	assert.False(t, domain.CheckLiquidation(dec("410"), maint, initial))
}

func TestWinRate(t *testing.T) {
	assert.True(t, domain.WinRate(3, 4).Equal(dec("75")))
	assert.True(t, domain.WinRate(0, 0).IsZero())
}

func TestCompetitionValidate(t *testing.T) {
	valid := domain.Competition{
		StartTime:            mustTime("2026-01-01T00:00:00Z"),
		EndTime:              mustTime("2026-02-01T00:00:00Z"),
		MaxLeverage:          dec("10"),
		MaintenanceMarginPct: dec("5"),
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.MaintenanceMarginPct = dec("10") // equal to initial margin
	assert.Error(t, bad.Validate())

	bad = valid
	bad.EndTime = valid.StartTime
	assert.Error(t, bad.Validate())

	bad = valid
	bad.MaxLeverage = dec("101")
	assert.Error(t, bad.Validate())
}
