package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubStreamsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(10, zaptest.NewLogger(t))
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, &models.TokenPriceTick{
		SaleID: "default", Price: decimal.RequireFromString("0.11"), Source: models.TickSourceBuy,
	}))

	var msg Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, uint64(1), msg.Seq)
	assert.Contains(t, string(msg.Tick), `"price":"0.11"`)
}

func TestHubReplaysToNewClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(2, zaptest.NewLogger(t))
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	for i := 0; i < 3; i++ {
		hub.Broadcast([]byte(`{"n":1}`))
	}
	// let the run loop drain the queue before connecting
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.nextSeq == 4
	}, time.Second, 10*time.Millisecond)

	conn := dialHub(t, srv)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second Message
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, uint64(2), first.Seq)
	assert.Equal(t, uint64(3), second.Seq)
}
