package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"farb/internal/application/port"
)

// PerpExecutor submits primary-leg orders to the Hyperliquid exchange
// endpoint. Request signing happens upstream of this process; a signer
// proxy injects the signature, this client only shapes the order.
type PerpExecutor struct {
	exchangeURL string
	client      *http.Client
}

func NewPerpExecutor(exchangeURL string) *PerpExecutor {
	if exchangeURL == "" {
		exchangeURL = "https://api.hyperliquid.xyz/exchange"
	}
	return &PerpExecutor{
		exchangeURL: exchangeURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *PerpExecutor) Name() string { return "HYPERLIQUID" }

type orderRequest struct {
	Coin       string `json:"coin"`
	IsBuy      bool   `json:"isBuy"`
	Size       string `json:"sz"`
	LimitPx    string `json:"limitPx"`
	OrderType  string `json:"orderType"`
	ReduceOnly bool   `json:"reduceOnly"`
	Timestamp  int64  `json:"timestamp"`
}

type orderResponse struct {
	Status string `json:"status"`
	Data   struct {
		Order struct {
			OID    string `json:"oid"`
			AvgPx  string `json:"avgPx"`
			Status string `json:"status"`
		} `json:"order"`
	} `json:"data"`
}

func (e *PerpExecutor) SubmitPrimaryLeg(ctx context.Context, coin, direction string, notionalUSD, markPrice float64) (*port.Fill, error) {
	if markPrice <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", markPrice, coin)
	}
	size := notionalUSD / markPrice
	return e.submit(ctx, orderRequest{
		Coin:      coin,
		IsBuy:     direction == "LONG",
		Size:      strconv.FormatFloat(size, 'f', 6, 64),
		LimitPx:   strconv.FormatFloat(markPrice, 'f', -1, 64),
		OrderType: "limit",
		Timestamp: time.Now().UnixMilli(),
	}, markPrice)
}

func (e *PerpExecutor) ClosePrimaryLeg(ctx context.Context, coin string, quantity, markPrice float64) (*port.Fill, error) {
	if markPrice <= 0 {
		return nil, fmt.Errorf("invalid mark price %v for %s", markPrice, coin)
	}
	return e.submit(ctx, orderRequest{
		Coin:       coin,
		IsBuy:      false,
		Size:       strconv.FormatFloat(quantity, 'f', 6, 64),
		LimitPx:    strconv.FormatFloat(markPrice, 'f', -1, 64),
		OrderType:  "limit",
		ReduceOnly: true,
		Timestamp:  time.Now().UnixMilli(),
	}, markPrice)
}

func (e *PerpExecutor) submit(ctx context.Context, order orderRequest, markPrice float64) (*port.Fill, error) {
	body, err := json.Marshal(map[string]any{"action": "order", "order": order})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.exchangeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hyperliquid exchange error: %d %s", resp.StatusCode, string(b))
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("hyperliquid order rejected: %s", out.Status)
	}

	filled := markPrice
	if px, err := strconv.ParseFloat(out.Data.Order.AvgPx, 64); err == nil && px > 0 {
		filled = px
	}
	return &port.Fill{FilledPrice: filled, TxRef: out.Data.Order.OID}, nil
}

var _ port.PerpExecutor = (*PerpExecutor)(nil)
