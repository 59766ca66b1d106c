package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/hub"
)

func TestServeWS_EndToEnd(t *testing.T) {
	h := runHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(h, w, r, domain.UserID(r.URL.Query().Get("user")), nil)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=u1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return h.UserConnections("u1") == 1 }, 2*time.Second, 5*time.Millisecond)

	frame, err := domain.NewFrame(domain.FrameNewMessage, domain.Message{ID: "m1", SenderID: "u2", RecipientID: "u1"})
	require.NoError(t, err)
	require.NoError(t, h.SendToUser("u1", frame))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var got domain.Frame
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, domain.FrameNewMessage, got.Type)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, domain.FramePong, got.Type)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return h.UserConnections("u1") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServeWS_KeepaliveFollowsPongs(t *testing.T) {
	defer hub.SetKeepalive(40*time.Millisecond, 120*time.Millisecond, 100*time.Millisecond)()

	h := runHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(h, w, r, domain.UserID(r.URL.Query().Get("user")), nil)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	// A reading peer answers protocol pings without sending any data frame.
	quiet, _, err := websocket.Dial(ctx, base+"/?user=quiet", nil)
	require.NoError(t, err)
	defer quiet.CloseNow()
	go func() {
		for {
			if _, _, err := quiet.Read(ctx); err != nil {
				return
			}
		}
	}()

	// A peer that never reads never answers a ping.
	deaf, _, err := websocket.Dial(ctx, base+"/?user=deaf", nil)
	require.NoError(t, err)
	defer deaf.CloseNow()

	require.Eventually(t, func() bool { return h.UserConnections("deaf") == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	require.Equal(t, 1, h.UserConnections("quiet"))
}
