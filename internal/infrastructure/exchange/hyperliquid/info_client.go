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
	"farb/internal/domain/model"
)

// InfoClient normalizes Hyperliquid perpetual market data into
// MarketSnapshots. Two info queries per fetch: metaAndAssetCtxs for
// price/funding/volume, predictedFundings for the next settlement time.
type InfoClient struct {
	infoURL string
	client  *http.Client
}

func NewInfoClient(infoURL string) *InfoClient {
	if infoURL == "" {
		infoURL = "https://api.hyperliquid.xyz/info"
	}
	return &InfoClient{
		infoURL: infoURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *InfoClient) Name() string { return "HYPERLIQUID" }

type assetMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type assetCtx struct {
	MarkPx    string `json:"markPx"`
	Funding   string `json:"funding"` // hourly fraction
	DayNtlVlm string `json:"dayNtlVlm"`
}

func (c *InfoClient) FetchSnapshots(ctx context.Context) ([]model.MarketSnapshot, error) {
	var metaCtxs []json.RawMessage
	if err := c.post(ctx, map[string]string{"type": "metaAndAssetCtxs"}, &metaCtxs); err != nil {
		return nil, fmt.Errorf("metaAndAssetCtxs: %w", err)
	}
	if len(metaCtxs) != 2 {
		return nil, fmt.Errorf("metaAndAssetCtxs: unexpected shape, %d elements", len(metaCtxs))
	}

	var meta assetMeta
	if err := json.Unmarshal(metaCtxs[0], &meta); err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(metaCtxs[1], &ctxs); err != nil {
		return nil, fmt.Errorf("asset contexts: %w", err)
	}
	if len(ctxs) < len(meta.Universe) {
		return nil, fmt.Errorf("asset contexts: %d contexts for %d coins", len(ctxs), len(meta.Universe))
	}

	nextByCoin, err := c.nextFundingTimes(ctx)
	if err != nil {
		// next-settlement data is advisory, the evaluator drops markets
		// without it; keep going with what we have
		nextByCoin = nil
	}

	now := time.Now().UnixMilli()
	out := make([]model.MarketSnapshot, 0, len(meta.Universe))
	for i, coin := range meta.Universe {
		cx := ctxs[i]
		mark, err1 := strconv.ParseFloat(cx.MarkPx, 64)
		funding, err2 := strconv.ParseFloat(cx.Funding, 64)
		volume, err3 := strconv.ParseFloat(cx.DayNtlVlm, 64)
		if err1 != nil || err2 != nil || err3 != nil || mark <= 0 {
			continue
		}

		snap := model.MarketSnapshot{
			Coin:          coin.Name,
			MarkPrice:     mark,
			FundingHourly: funding,
			Volume24hUSD:  volume,
			Timestamp:     now,
		}
		if ts, ok := nextByCoin[coin.Name]; ok {
			t := time.UnixMilli(ts)
			snap.NextFundingTime = &t
		}
		out = append(out, snap)
	}
	return out, nil
}

// nextFundingTimes reads predictedFundings and keeps the venue's own
// (HlPerp) next settlement per coin.
func (c *InfoClient) nextFundingTimes(ctx context.Context) (map[string]int64, error) {
	// shape: [[ "AVAX", [[venue, {fundingRate, nextFundingTime}], ...]], ...]
	var raw [][2]json.RawMessage
	if err := c.post(ctx, map[string]string{"type": "predictedFundings"}, &raw); err != nil {
		return nil, fmt.Errorf("predictedFundings: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for _, pair := range raw {
		var coin string
		if err := json.Unmarshal(pair[0], &coin); err != nil {
			continue
		}
		var venues [][2]json.RawMessage
		if err := json.Unmarshal(pair[1], &venues); err != nil {
			continue
		}
		for _, v := range venues {
			var venue string
			if err := json.Unmarshal(v[0], &venue); err != nil || venue != "HlPerp" {
				continue
			}
			var data struct {
				NextFundingTime int64 `json:"nextFundingTime"`
			}
			if err := json.Unmarshal(v[1], &data); err == nil && data.NextFundingTime > 0 {
				out[coin] = data.NextFundingTime
			}
			break
		}
	}
	return out, nil
}

func (c *InfoClient) post(ctx context.Context, payload any, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hyperliquid api error: %d %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

var _ port.MarketDataSource = (*InfoClient)(nil)
