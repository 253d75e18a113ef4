package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// Console implements ports.Notifier by printing the leaderboard to stdout
// after every decision tick.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier over w, for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PublishLeaderboard renders the competition standings as a table.
// Standings arrive already ranked by equity descending.
func (c *Console) PublishLeaderboard(_ context.Context, comp domain.Competition, standings []domain.Participant) error {
	now := time.Now().Format("15:04:05")
	if len(standings) == 0 {
		fmt.Fprintf(c.out, "[%s] %s — no participants\n", now, comp.Name)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %s — %d participants, ends %s\n",
		now, comp.Name, len(standings), comp.EndTime.Format("2006-01-02 15:04"))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Participant", "Model", "Status", "Equity", "PnL %", "Trades", "W/L")

	for i, p := range standings {
		table.Append(
			fmt.Sprintf("%d", i+1),
			p.Name,
			p.AgentModel,
			string(p.Status),
			"$"+p.CurrentEquity.StringFixed(2),
			p.PnLPct().StringFixed(2)+"%",
			fmt.Sprintf("%d", p.TotalTrades),
			fmt.Sprintf("%d/%d", p.WinningTrades, p.LosingTrades),
		)
	}
	table.Render()
	return nil
}
