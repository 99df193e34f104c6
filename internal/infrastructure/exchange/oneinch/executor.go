package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"farb/internal/application/port"
)

// HedgeExecutor buys and sells the hedge leg through the 1inch swap
// API. Quote first, then swap; transaction broadcast is handled by the
// wallet service behind the API key.
type HedgeExecutor struct {
	baseURL string
	apiKey  string
	chainID int
	client  *http.Client

	// stablecoin funding the hedge side
	quoteSymbol string
}

func NewHedgeExecutor(baseURL, apiKey string, chainID int) *HedgeExecutor {
	if baseURL == "" {
		baseURL = "https://api.1inch.dev/swap/v6.0"
	}
	return &HedgeExecutor{
		baseURL:     baseURL,
		apiKey:      apiKey,
		chainID:     chainID,
		client:      &http.Client{Timeout: 15 * time.Second},
		quoteSymbol: "USDC",
	}
}

func (e *HedgeExecutor) Name() string { return "1INCH" }

type swapResponse struct {
	ToAmount string `json:"toAmount"`
	Tx       struct {
		Hash string `json:"hash"`
	} `json:"tx"`
}

// SubmitHedgeLeg swaps notionalUSD of the stablecoin into the hedge
// token.
func (e *HedgeExecutor) SubmitHedgeLeg(ctx context.Context, coin string, notionalUSD, markPrice float64) (*port.Fill, error) {
	return e.swap(ctx, e.quoteSymbol, coin, notionalUSD, markPrice)
}

// CloseHedgeLeg swaps the hedge token back into the stablecoin.
func (e *HedgeExecutor) CloseHedgeLeg(ctx context.Context, coin string, quantity, markPrice float64) (*port.Fill, error) {
	return e.swap(ctx, coin, e.quoteSymbol, quantity, markPrice)
}

func (e *HedgeExecutor) swap(ctx context.Context, from, to string, amount, markPrice float64) (*port.Fill, error) {
	q := url.Values{}
	q.Set("src", from)
	q.Set("dst", to)
	q.Set("amount", strconv.FormatFloat(amount, 'f', 6, 64))

	u := fmt.Sprintf("%s/%d/swap?%s", e.baseURL, e.chainID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("1inch api error: %d %s", resp.StatusCode, string(b))
	}

	var out swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	fill := &port.Fill{FilledPrice: markPrice, TxRef: out.Tx.Hash}
	if got, err := strconv.ParseFloat(out.ToAmount, 64); err == nil && got > 0 && amount > 0 {
		// implied token price from the actual swap amounts
		if from == e.quoteSymbol {
			fill.FilledPrice = amount / got // USD in, tokens out
		} else {
			fill.FilledPrice = got / amount // tokens in, USD out
		}
	}
	return fill, nil
}

var _ port.HedgeExecutor = (*HedgeExecutor)(nil)
