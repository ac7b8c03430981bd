package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeReport() domain.BatchReport {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ok := domain.Result{RealizedPnL: 1234.5, UnrealizedPnL: -10, OpenPositions: 3, EventsProcessed: 42}
	return domain.BatchReport{
		RunID:      "run-123",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Wallets: map[string]domain.WalletReport{
			"0xd59d03eeb0fd5979c702ba20bcc25da2ae1d9723": {
				Wallet:      "0xd59d03eeb0fd5979c702ba20bcc25da2ae1d9723",
				Result:      &ok,
				Leaderboard: &domain.LeaderboardEligibility{Eligible: true},
				CopyTrade: &domain.CopyTradeEligibility{
					Reasons: []domain.ReasonCode{domain.ReasonLowTradeCount, domain.ReasonSmallPnL},
				},
				Display: domain.Display{
					Cohort: domain.CohortSafe, DisplayPnL: 1234.5, ShouldDisplay: true,
					WalletType: domain.WalletClobOnly, Reason: "strict trader, error 1.00%",
				},
			},
			"0xbad": {
				Wallet:  "0xbad",
				Display: domain.Display{Cohort: domain.CohortSuspect, WalletType: domain.WalletUnknown},
				Error:   "event source timed out",
			},
		},
	}
}

func TestConsole_Notify_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true, false)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "0xd59d…9723")
	assert.Contains(t, out, "$1234.50")
	assert.Contains(t, out, "CLOB_ONLY")
	assert.Contains(t, out, "hidden")
	assert.Contains(t, out, "1 failed")
}

func TestConsole_Notify_CompactWithReasons(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false, true)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "2 wallets")
	assert.Contains(t, out, "SAFE:1")
	assert.Contains(t, out, "SUSPECT:1")
	assert.Contains(t, out, "LOW_TRADE_COUNT,SMALL_PNL")
	assert.Contains(t, out, "error: event source timed out")
}

func TestConsole_Notify_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true, false)

	require.NoError(t, n.Notify(context.Background(), domain.BatchReport{}))
	assert.Contains(t, buf.String(), "no wallets evaluated")
}
