package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/domain"
)

func dialHub(t *testing.T) (*notify.Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := notify.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func TestHub_BroadcastsReport(t *testing.T) {
	hub, conn := dialHub(t)

	require.NoError(t, hub.Notify(context.Background(), makeReport()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg notify.ReportMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "batch", msg.Type)
	assert.Equal(t, "run-123", msg.RunID)
	assert.Equal(t, 1, msg.Failed)
	require.Len(t, msg.Wallets, 2)
	// Ordenado por PnL mostrado: la wallet SAFE va primero
	assert.Equal(t, domain.CohortSafe, msg.Wallets[0].Cohort)
}

func TestHub_DropsClosedClients(t *testing.T) {
	hub, conn := dialHub(t)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(_ context.Context, _ domain.BatchReport) error {
	f.calls++
	return errors.New("boom")
}

func TestMulti_NotifiesAll(t *testing.T) {
	var buf bytes.Buffer
	failing := &failingNotifier{}
	m := notify.Multi{failing, notify.NewConsoleWriter(&buf, false, false)}

	err := m.Notify(context.Background(), makeReport())
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, failing.calls)
	assert.Contains(t, buf.String(), "2 wallets")
}
