package agent_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gauntlet/internal/application/agent"
	"github.com/alejandrodnm/gauntlet/internal/domain"
)

const tradeJSON = `{
  "decision": "trade",
  "reasoning": "momentum breakout on the 15m",
  "confidence": 0.7,
  "orders": [
    {"action": "open", "symbol": "BTCUSDT", "side": "buy", "quantity": 0.05, "leverage": 5}
  ]
}`

// The same decision must parse whatever framing the model wraps it in.
func TestParseDecision_Framings(t *testing.T) {
	cases := map[string]string{
		"plain json":   tradeJSON,
		"fenced json":  "Here is my decision:\n```json\n" + tradeJSON + "\n```\nGood luck.",
		"bare fence":   "```\n" + tradeJSON + "\n```",
		"prose around": "After reviewing the market I will act.\n" + tradeJSON + "\nThat is all.",
		"reasoning/response sections": "[Reasoning]\nThe 15m trend is up and funding is neutral.\n\n" +
			"[Response]\n```json\n" + tradeJSON + "\n```",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := agent.ParseDecision(reply)
			require.NoError(t, err)
			assert.Equal(t, "trade", d.Decision)
			require.Len(t, d.Orders, 1)
			o := d.Orders[0]
			assert.Equal(t, domain.ActionOpen, o.Action)
			assert.Equal(t, "BTCUSDT", o.Symbol)
			require.NotNil(t, o.Side)
			assert.Equal(t, domain.OrderBuy, *o.Side)
			require.NotNil(t, o.Quantity)
			assert.Equal(t, "0.05", o.Quantity.String())
			assert.Equal(t, "5", o.Leverage.String())
		})
	}
}

func TestParseDecision_Hold(t *testing.T) {
	d, err := agent.ParseDecision(`{"decision": "hold", "reasoning": "no edge right now"}`)
	require.NoError(t, err)
	assert.Equal(t, "hold", d.Decision)
	assert.Empty(t, d.Orders)
}

func TestParseDecision_CloseWithExitPlan(t *testing.T) {
	reply := `{
	  "decision": "trade",
	  "reasoning": "take profit",
	  "orders": [
	    {"action": "close", "symbol": "ETHUSDT", "position_id": "0d9c2f7a-92a1-4a96-bd6a-111111111111"}
	  ]
	}`
	d, err := agent.ParseDecision(reply)
	require.NoError(t, err)
	require.Len(t, d.Orders, 1)
	assert.Equal(t, domain.ActionClose, d.Orders[0].Action)
	assert.Equal(t, "0d9c2f7a-92a1-4a96-bd6a-111111111111", d.Orders[0].PositionID)
}

func TestParseDecision_ReasoningPreambleWithBraces(t *testing.T) {
	// Stray braces in the reasoning section must not shadow the real payload.
	reply := "[Reasoning]\nIf RSI > 70 {overbought} I would fade it.\n" +
		"[Response]\n" + tradeJSON
	d, err := agent.ParseDecision(reply)
	require.NoError(t, err)
	assert.Equal(t, "trade", d.Decision)
}

func TestParseDecision_Invalid(t *testing.T) {
	cases := map[string]string{
		"no json at all":     "I refuse to answer in JSON today.",
		"wrong decision":     `{"decision": "maybe", "reasoning": "x"}`,
		"open without side":  `{"decision": "trade", "reasoning": "x", "orders": [{"action": "open", "symbol": "BTCUSDT", "quantity": 1, "leverage": 5}]}`,
		"close without id":   `{"decision": "trade", "reasoning": "x", "orders": [{"action": "close", "symbol": "BTCUSDT"}]}`,
		"reasoning too long": `{"decision": "hold", "reasoning": "` + strings.Repeat("a", 501) + `"}`,
		"confidence range":   `{"decision": "hold", "reasoning": "x", "confidence": 1.5}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := agent.ParseDecision(reply)
			assert.ErrorIs(t, err, agent.ErrUnparseable)
		})
	}
}
