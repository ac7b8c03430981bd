package pnl_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alejandrodnm/polypnl/internal/application/pnl"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBatch_PartialFailure(t *testing.T) {
	src := newFakeSource()
	src.events["0xaaa"] = buyThenSell("0xaaa")
	src.events["0xbbb"] = buyThenSell("0xbbb")
	src.failWallets["0xbad"] = errors.New("upstream 500")
	svc := pnl.New(pnl.Config{}, src, nil, nil)

	report := svc.EvaluateBatch(context.Background(), []string{"0xAAA", "0xaaa", "0xBBB", "0xBad", ""}, 2)

	require.Len(t, report.Wallets, 3)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	assert.Equal(t, 1, report.Failed())

	ok := report.Wallets["0xaaa"]
	require.NotNil(t, ok.Result)
	require.NotNil(t, ok.Leaderboard)
	require.NotNil(t, ok.CopyTrade)
	assert.Empty(t, ok.Error)
	assert.Equal(t, 5.0, ok.Result.RealizedPnL)

	bad := report.Wallets["0xbad"]
	assert.Nil(t, bad.Result)
	assert.NotEmpty(t, bad.Error)
	assert.Equal(t, domain.CohortSuspect, bad.Display.Cohort)
	assert.False(t, bad.Display.ShouldDisplay)
}

func TestEvaluateBatch_ManyWallets(t *testing.T) {
	src := newFakeSource()
	wallets := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		w := fmt.Sprintf("0x%04d", i)
		src.events[w] = buyThenSell(w)
		wallets = append(wallets, w)
	}
	svc := pnl.New(pnl.Config{Workers: 4}, src, nil, nil)

	report := svc.EvaluateBatch(context.Background(), wallets, 0)
	require.Len(t, report.Wallets, 40)
	assert.Zero(t, report.Failed())
	for _, w := range wallets {
		assert.Equal(t, 5.0, report.Wallets[w].Result.RealizedPnL, w)
	}

	sorted := report.Sorted()
	require.Len(t, sorted, 40)
	assert.Equal(t, "0x0000", sorted[0].Wallet)
}

func TestEvaluateBatch_Empty(t *testing.T) {
	svc := pnl.New(pnl.Config{}, newFakeSource(), nil, nil)
	report := svc.EvaluateBatch(context.Background(), nil, 3)
	assert.Empty(t, report.Wallets)
	assert.NotEmpty(t, report.RunID)
}
