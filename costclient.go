package poe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"go.uber.org/zap"
)

// CostClient authorizes and captures monetized usage against Poe's cost
// channel (C8, spec.md §4.8): a POST to
// …/bot/cost/{bot_query_id}/{authorize|capture} whose response is itself an
// SSE stream rather than a plain JSON body.
type CostClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewCostClient builds a CostClient against the platform's cost endpoints.
func NewCostClient(baseURL string, logger *zap.Logger) *CostClient {
	return &CostClient{
		BaseURL:    baseURL,
		HTTPClient: http.DefaultClient,
		Logger:     logger,
	}
}

// Authorize requests pre-authorization for amounts before a bot does
// chargeable work. It returns InsufficientFundError when the result event's
// status is anything other than "success", and CostRequestError for a
// non-200 response, a missing or malformed result event, or a transport
// failure.
func (c *CostClient) Authorize(ctx context.Context, botQueryID, accessKey string, amounts []CostItem) error {
	return c.call(ctx, "authorize", botQueryID, accessKey, amounts)
}

// Capture finalizes a previously authorized charge after the chargeable
// work has completed.
func (c *CostClient) Capture(ctx context.Context, botQueryID, accessKey string, amounts []CostItem) error {
	return c.call(ctx, "capture", botQueryID, accessKey, amounts)
}

func (c *CostClient) call(ctx context.Context, phase, botQueryID, accessKey string, amounts []CostItem) error {
	if botQueryID == "" {
		return perrors.NewInvalidParameter("bot_query_id is required for a cost request")
	}
	if accessKey == "" {
		return perrors.NewInvalidParameter("access_key must be configured on the bot for a cost request")
	}

	body, err := json.Marshal(costRequestBody{Amounts: amounts, AccessKey: accessKey})
	if err != nil {
		return perrors.NewInvalidParameter("failed to marshal cost request")
	}

	url := fmt.Sprintf("%s/bot/cost/%s/%s", c.BaseURL, botQueryID, phase)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return perrors.NewCostRequestError("failed to build cost request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return perrors.NewCostRequestError(fmt.Sprintf("cost channel transport error: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return perrors.NewCostRequestError(fmt.Sprintf("cost channel returned status %d: %s", resp.StatusCode, msg))
	}

	reader := NewSSEReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return perrors.NewCostRequestError("cost channel stream ended without a result event")
		}
		if ev.Kind != "result" {
			continue
		}
		var payload costResultPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return perrors.NewCostRequestError("malformed cost channel result event")
		}
		if payload.Status == costStatusSuccess {
			return nil
		}
		return perrors.NewInsufficientFundError(fmt.Sprintf("cost channel reported status %q", payload.Status))
	}
}
