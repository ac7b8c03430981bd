package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/httpapi"
	"github.com/alejandrodnm/polypnl/internal/domain"
)

type stubService struct {
	results map[string]domain.Result
	errs    map[string]error

	lastOpts    domain.Options
	lastBench   *float64
	lastWorkers int
	lastWallets []string
}

func newStub() *stubService {
	return &stubService{
		results: make(map[string]domain.Result),
		errs:    make(map[string]error),
	}
}

func (s *stubService) DefaultOptions() domain.Options {
	return domain.Options{Mode: domain.ModeEconomic}
}

func (s *stubService) ComputePnL(_ context.Context, wallet string, opts domain.Options) (domain.Result, error) {
	s.lastOpts = opts
	if err := s.errs[wallet]; err != nil {
		return domain.Result{}, err
	}
	r := s.results[wallet]
	r.Wallet = wallet
	r.Mode = opts.Mode
	return r, nil
}

func (s *stubService) ClassifyForLeaderboard(r domain.Result) domain.LeaderboardEligibility {
	return domain.LeaderboardEligibility{Eligible: r.RealizedPnL > 0, WalletType: domain.WalletClobOnly}
}

func (s *stubService) ClassifyForCopyTrade(r domain.Result) domain.CopyTradeEligibility {
	return domain.CopyTradeEligibility{Eligible: false, Reasons: []domain.ReasonCode{domain.ReasonLowTradeCount}}
}

func (s *stubService) GetDisplay(_ context.Context, wallet string, bench *float64) domain.Display {
	s.lastBench = bench
	return domain.Display{Wallet: wallet, Cohort: domain.CohortModerate, ShouldDisplay: true}
}

func (s *stubService) EvaluateBatch(_ context.Context, wallets []string, workers int) domain.BatchReport {
	s.lastWallets = wallets
	s.lastWorkers = workers
	out := domain.BatchReport{RunID: "run-1", Wallets: make(map[string]domain.WalletReport)}
	for _, w := range wallets {
		out.Wallets[w] = domain.WalletReport{Wallet: w}
	}
	return out
}

func serve(t *testing.T, svc httpapi.Service, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	router := httpapi.NewHandler(svc).Router(5 * time.Second)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, newStub(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, newStub(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPnL(t *testing.T) {
	svc := newStub()
	svc.results["0xabc"] = domain.Result{RealizedPnL: 12.5, UIParityPnL: 12.5}

	rec := serve(t, svc, http.MethodGet, "/api/v1/wallets/0xABC/pnl?mode=live&guard=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0xabc", got.Wallet)
	assert.Equal(t, 12.5, got.RealizedPnL)
	assert.Equal(t, domain.ModeLive, svc.lastOpts.Mode)
	assert.True(t, svc.lastOpts.GuardNegativeInventory)
}

func TestGetPnL_BadParams(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"unknown mode", "/api/v1/wallets/0xabc/pnl?mode=mark"},
		{"bad guard", "/api/v1/wallets/0xabc/pnl?guard=maybe"},
		{"not an address", "/api/v1/wallets/alice/pnl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, newStub(), http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetPnL_SourceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"timeout", fmt.Errorf("%w: slow", domain.ErrSourceTimeout), http.StatusGatewayTimeout},
		{"unavailable", fmt.Errorf("%w: refused", domain.ErrSourceUnavailable), http.StatusBadGateway},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStub()
			svc.errs["0xabc"] = tt.err
			rec := serve(t, svc, http.MethodGet, "/api/v1/wallets/0xabc/pnl", nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGetLeaderboardAndCopyTrade(t *testing.T) {
	svc := newStub()
	svc.results["0xabc"] = domain.Result{RealizedPnL: 200}

	rec := serve(t, svc, http.MethodGet, "/api/v1/wallets/0xabc/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lb domain.LeaderboardEligibility
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lb))
	assert.True(t, lb.Eligible)

	rec = serve(t, svc, http.MethodGet, "/api/v1/wallets/0xabc/copytrade", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ct domain.CopyTradeEligibility
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ct))
	assert.False(t, ct.Eligible)
	assert.Equal(t, []domain.ReasonCode{domain.ReasonLowTradeCount}, ct.Reasons)
}

func TestGetDisplay_Benchmark(t *testing.T) {
	svc := newStub()
	rec := serve(t, svc, http.MethodGet, "/api/v1/wallets/0xabc/display?benchmark_error=1.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastBench)
	assert.Equal(t, 1.5, *svc.lastBench)

	rec = serve(t, svc, http.MethodGet, "/api/v1/wallets/0xabc/display", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.lastBench)

	rec = serve(t, svc, http.MethodGet, "/api/v1/wallets/0xabc/display?benchmark_error=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostBatch(t *testing.T) {
	svc := newStub()
	body, _ := json.Marshal(httpapi.BatchRequest{Wallets: []string{"0xa", "0xb"}, Workers: 4})

	rec := serve(t, svc, http.MethodPost, "/api/v1/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.BatchReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Len(t, report.Wallets, 2)
	assert.Equal(t, 4, svc.lastWorkers)
}

func TestPostBatch_Rejects(t *testing.T) {
	tooMany := make([]string, 501)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("0x%d", i)
	}
	big, _ := json.Marshal(httpapi.BatchRequest{Wallets: tooMany})
	empty, _ := json.Marshal(httpapi.BatchRequest{})
	negative, _ := json.Marshal(httpapi.BatchRequest{Wallets: []string{"0xa"}, Workers: -1})

	for name, body := range map[string][]byte{
		"malformed": []byte("{"),
		"empty":     empty,
		"too many":  big,
		"negative":  negative,
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, newStub(), http.MethodPost, "/api/v1/batch", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestReportStreamMountedOnlyWhenSet(t *testing.T) {
	rec := serve(t, newStub(), http.MethodGet, "/api/v1/ws", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	router := httpapi.NewHandler(newStub()).WithReportStream(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}).Router(time.Second)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORS(t *testing.T) {
	router := httpapi.NewHandler(newStub()).WithCORS([]string{"https://dash.example.com"}).Router(time.Second)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/batch", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Sin WithCORS no hay cabeceras
	rec = serve(t, newStub(), http.MethodGet, "/health", nil)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
