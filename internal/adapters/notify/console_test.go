package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gauntlet/internal/adapters/notify"
	"github.com/alejandrodnm/gauntlet/internal/domain"
)

func makeStanding(name string, equity int64) domain.Participant {
	return domain.Participant{
		ID:             uuid.New(),
		Name:           name,
		AgentModel:     "claude-sonnet-4-5",
		Status:         domain.ParticipantActive,
		InitialCapital: decimal.NewFromInt(10000),
		CurrentEquity:  decimal.NewFromInt(equity),
		TotalTrades:    3,
		WinningTrades:  2,
		LosingTrades:   1,
	}
}

func TestConsole_PublishLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	comp := domain.Competition{
		Name:    "weekend sprint",
		EndTime: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	standings := []domain.Participant{
		makeStanding("alpha", 11500),
		makeStanding("bravo", 9200),
	}

	err := n.PublishLeaderboard(context.Background(), comp, standings)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "weekend sprint")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "bravo")
	assert.Contains(t, out, "11500.00")
	assert.Contains(t, out, "15.00%", "alpha is up 15 percent")
	assert.Contains(t, out, "-8.00%", "bravo is down 8 percent")
	assert.Contains(t, out, "2/1")
}

func TestConsole_PublishLeaderboard_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	err := n.PublishLeaderboard(context.Background(), domain.Competition{Name: "empty"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no participants")
}
