package poe

import (
	"encoding/json"
	"math"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
)

// CostItem identifies one billable amount authorized or captured against a
// bot_query_id via the two-phase cost channel (C8, spec.md §3, §4.8).
type CostItem struct {
	AmountUSDMilliCents int    `json:"amount_usd_milli_cents"`
	Description         string `json:"description,omitempty"`
}

// UnmarshalJSON accepts an integer or a JSON number for
// amount_usd_milli_cents, ceiling-rounding a non-integer float to the next
// whole milli-cent and rejecting any other non-numeric shape, matching
// spec.md §3's validator.
func (c *CostItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount      json.Number `json:"amount_usd_milli_cents"`
		Description string      `json:"description,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return perrors.NewInvalidParameter("cost item amount_usd_milli_cents must be a number: " + err.Error())
	}
	f, err := raw.Amount.Float64()
	if err != nil {
		return perrors.NewInvalidParameter("cost item amount_usd_milli_cents is not numeric")
	}
	c.AmountUSDMilliCents = int(math.Ceil(f))
	c.Description = raw.Description
	return nil
}

// costRequestBody is the payload posted to the cost authorize/capture
// endpoint: {amounts:[...], access_key} per spec.md §4.8.
type costRequestBody struct {
	Amounts   []CostItem `json:"amounts"`
	AccessKey string     `json:"access_key"`
}

// costResultPayload is the data shape of the SSE "result" event the cost
// channel emits on HTTP 200.
type costResultPayload struct {
	Status string `json:"status"`
}

const costStatusSuccess = "success"
