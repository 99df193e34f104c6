package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"farb/internal/application/port"
)

// MidsFeed streams Hyperliquid allMids over websocket: one message per
// venue tick carrying the mid price of every listed coin.
type MidsFeed struct {
	wsURL string
}

func NewMidsFeed(wsURL string) *MidsFeed {
	return &MidsFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *MidsFeed) Name() string { return "HYPERLIQUID_MIDS" }

type wsMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

func (f *MidsFeed) Subscribe(ctx context.Context) (<-chan port.Mid, error) {
	if f.wsURL == "" {
		return nil, errors.New("hyperliquid ws url empty")
	}
	out := make(chan port.Mid, 1024)
	go f.run(ctx, out)
	return out, nil
}

func (f *MidsFeed) run(ctx context.Context, out chan<- port.Mid) {
	defer close(out)

	backoff := 500 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		sub := map[string]any{
			"method":       "subscribe",
			"subscription": map[string]string{"type": "allMids"},
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws subscribe failed")
			_ = conn.Close()
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", f.Name()).Msg("ws connected")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg wsMessage
			if e := json.Unmarshal(b, &msg); e != nil || msg.Channel != "allMids" {
				return
			}
			ts := time.Now().UnixMilli()
			for coin, px := range msg.Data.Mids {
				n, e := strconv.ParseFloat(px, 64)
				if e != nil || n <= 0 {
					continue
				}
				select {
				case out <- port.Mid{Coin: strings.ToUpper(coin), Price: n, Ts: ts}:
				default:
					// consumer is behind; stale mids are worthless
				}
			}
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.MidsFeed = (*MidsFeed)(nil)
