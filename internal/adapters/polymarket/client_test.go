package polymarket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polypnl/internal/adapters/polymarket"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(dataSrv, clobSrv *httptest.Server) *polymarket.Client {
	dataURL := ""
	clobURL := ""
	if dataSrv != nil {
		dataURL = dataSrv.URL
	}
	if clobSrv != nil {
		clobURL = clobSrv.URL
	}
	return polymarket.NewClient(dataURL, clobURL).WithRetryWait(time.Millisecond)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

func TestLoadEvents_Success(t *testing.T) {
	data := fixture(t, "data_activity.json")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity", r.URL.Path)
		assert.Equal(t, "0xd59d03eeb0fd5979c702ba20bcc25da2ae1d9723", r.URL.Query().Get("user"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	events, err := client.LoadEvents(context.Background(), "0xD59D03EEB0FD5979C702BA20BCC25DA2AE1D9723")
	require.NoError(t, err)

	// 5 filas: 1 REWARD ignorada, 1 SPLIT → 2 eventos
	require.Len(t, events, 5)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Before(events[i-1]), "events must be ordered")
	}

	buy := events[0]
	assert.Equal(t, domain.SourceTrade, buy.Kind)
	assert.Equal(t, "0xaaa", buy.ConditionID)
	assert.InDelta(t, -50.0, buy.CashDelta, 1e-9)
	assert.InDelta(t, 100.0, buy.TokenDelta, 1e-9)

	split0, split1 := events[1], events[2]
	assert.Equal(t, domain.SourceSplit, split0.Kind)
	assert.Equal(t, 0, split0.OutcomeIndex)
	assert.Equal(t, 1, split1.OutcomeIndex)
	assert.InDelta(t, -20.0, split0.CashDelta, 1e-9)
	assert.InDelta(t, 40.0, split1.TokenDelta, 1e-9)

	sell := events[3]
	assert.InDelta(t, 30.0, sell.CashDelta, 1e-9)
	assert.InDelta(t, -50.0, sell.TokenDelta, 1e-9)

	redeem := events[4]
	assert.Equal(t, domain.SourceRedemption, redeem.Kind)
	require.NotNil(t, redeem.ResolutionPayout)
	assert.InDelta(t, 1.0, *redeem.ResolutionPayout, 1e-9)
	assert.Equal(t, time.Unix(1727090000, 0).UTC(), redeem.Timestamp)
}

// fullActivityPage devuelve activityPageSize filas TRADE. Muchas comparten
// tx, asset y size: son fills distintos de la misma transacción.
func fullActivityPage() []byte {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 500; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(activityRow(i))
	}
	b.WriteString("]")
	return []byte(b.String())
}

func activityRow(i int) string {
	return `{"timestamp":1727000000,"conditionId":"0xc","type":"TRADE","size":1,"usdcSize":0.5,"transactionHash":"0xp` +
		strings.Repeat("a", i%7) + `","asset":"a` + string(rune('a'+i%26)) + `","side":"BUY","outcomeIndex":0}`
}

func TestLoadEvents_Paginates(t *testing.T) {
	var calls int32
	page := fullActivityPage()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			// Página llena → debe pedir la siguiente
			w.Write(page)
			return
		}
		assert.Equal(t, "500", r.URL.Query().Get("offset"))
		// Solape: la primera fila vuelve a aparecer y se deduplica
		w.Write([]byte("[" + activityRow(0) + "]"))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	events, err := client.LoadEvents(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, events, 500, "identical fills in one page are all kept")
}

func TestLoadEvents_TruncatedHistoryFails(t *testing.T) {
	var calls int32
	page := fullActivityPage()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write(page)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	events, err := client.LoadEvents(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Nil(t, events)
	assert.ErrorIs(t, err, polymarket.ErrHistoryTruncated)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	// offsets 0..10000 de 500 en 500
	assert.Equal(t, int32(21), atomic.LoadInt32(&calls))
}

func TestLoadEvents_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	_, err := client.LoadEvents(context.Background(), "0xabc")
	assert.Error(t, err)
}

func TestLoadEvents_DeadlineSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	client := newTestClient(srv, nil)
	_, err := client.LoadEvents(ctx, "0xabc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestLoadResolutionPrices(t *testing.T) {
	closed := fixture(t, "clob_market_closed.json")
	open := fixture(t, "clob_market_open.json")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets/0xbbb":
			w.Write(closed)
		case "/markets/0xaaa":
			w.Write(open)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	res, err := client.LoadResolutionPrices(context.Background(), "0xabc", []string{"0xaaa", "0xbbb", "0xmissing"})
	require.NoError(t, err)

	require.Len(t, res, 1)
	assert.Equal(t, map[int]float64{0: 0, 1: 1}, res["0xbbb"])
}

func TestLoadLivePrices(t *testing.T) {
	closed := fixture(t, "clob_market_closed.json")
	open := fixture(t, "clob_market_open.json")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/markets/0xbbb" {
			w.Write(closed)
			return
		}
		w.Write(open)
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	live, err := client.LoadLivePrices(context.Background(), "0xabc", []string{"0xaaa", "0xbbb"})
	require.NoError(t, err)

	assert.Len(t, live, 2)
	assert.InDelta(t, 0.72, live[domain.PriceKey("0xaaa", 0)], 1e-9)
	assert.InDelta(t, 0.28, live[domain.PriceKey("0xaaa", 1)], 1e-9)
}

func TestLoadLivePrices_RetriesServerErrors(t *testing.T) {
	open := fixture(t, "clob_market_open.json")
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(open)
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	live, err := client.LoadLivePrices(context.Background(), "0xabc", []string{"0xaaa"})
	require.NoError(t, err)
	assert.Len(t, live, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
