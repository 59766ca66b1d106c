package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cipherchat/internal/connection"
	"cipherchat/internal/domain"
)

// frameTimeout bounds the relay calls made while handling one frame.
const frameTimeout = 15 * time.Second

// PublishPrekeys generates count prekeys and uploads a bundle for every
// unused prekey. It returns the number of bundles uploaded.
func (w *Wire) PublishPrekeys(ctx context.Context, count int) (int, error) {
	if _, err := w.Sessions.PublishPrekeys(count); err != nil {
		return 0, err
	}
	bundles, err := w.Sessions.Bundles(w.cfg.UserID)
	if err != nil {
		return 0, err
	}
	for i, b := range bundles {
		if err := w.Relay.PublishBundle(ctx, b); err != nil {
			return i, fmt.Errorf("publish bundle %s: %w", b.PreKeyID, err)
		}
	}
	return len(bundles), nil
}

// Connect opens the realtime connection and routes its frames and status
// changes into the delivery coordinator.
func (w *Wire) Connect() error {
	endpoint, err := w.cfg.WebsocketURL()
	if err != nil {
		return err
	}
	return w.Conn.Connect(endpoint, w.cfg.Token, connection.Handlers{
		OnMessage: w.handleFrame,
		OnStatus: func(s connection.Status) {
			w.Delivery.ConnectionStatus(s.String())
		},
		OnError: func(err error) {
			w.log.Error("connection failed", zap.Error(err))
		},
	})
}

func (w *Wire) handleFrame(f domain.Frame) {
	ctx, cancel := context.WithTimeout(w.ctx, frameTimeout)
	defer cancel()
	if err := w.Delivery.HandleFrame(ctx, f); err != nil {
		w.log.Warn("frame dropped", zap.String("type", f.Type), zap.Error(err))
	}
}
