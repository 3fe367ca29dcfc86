package poe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	perrors "github.com/poe-platform/fastapi-poe/pkg/errors"
	"go.uber.org/zap"
)

func sseResultServer(status string, httpStatus int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(httpStatus)
		if httpStatus != http.StatusOK {
			fmt.Fprint(w, "server error")
			return
		}
		fmt.Fprintf(w, "event: result\ndata: {\"status\":%q}\n\n", status)
	}))
}

func TestCostClientAuthorizeSuccess(t *testing.T) {
	srv := sseResultServer("success", http.StatusOK)
	defer srv.Close()

	c := NewCostClient(srv.URL, zap.NewNop())
	err := c.Authorize(context.Background(), "bq1", "key", []CostItem{{AmountUSDMilliCents: 1000}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
}

func TestCostClientInsufficientFunds(t *testing.T) {
	srv := sseResultServer("insufficient funds", http.StatusOK)
	defer srv.Close()

	c := NewCostClient(srv.URL, zap.NewNop())
	err := c.Authorize(context.Background(), "bq1", "key", []CostItem{{AmountUSDMilliCents: 1000}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !perrors.Is(err, perrors.CodeInsufficientFund) {
		t.Fatalf("expected CodeInsufficientFund, got %v", err)
	}
}

func TestCostClientHTTPErrorIsCostRequestError(t *testing.T) {
	srv := sseResultServer("insufficient funds", http.StatusBadRequest)
	defer srv.Close()

	c := NewCostClient(srv.URL, zap.NewNop())
	err := c.Authorize(context.Background(), "bq1", "key", []CostItem{{AmountUSDMilliCents: 1000}})
	if !perrors.Is(err, perrors.CodeCostRequest) {
		t.Fatalf("expected CodeCostRequest, got %v", err)
	}
}

func TestCostClientTransportFailureIsCostRequestError(t *testing.T) {
	c := NewCostClient("http://127.0.0.1:0", zap.NewNop())
	err := c.Authorize(context.Background(), "bq1", "key", []CostItem{{AmountUSDMilliCents: 1000}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !perrors.Is(err, perrors.CodeCostRequest) {
		t.Fatalf("expected CodeCostRequest, got %v", err)
	}
}

func TestCostClientRequiresBotQueryID(t *testing.T) {
	c := NewCostClient("http://example.invalid", zap.NewNop())
	err := c.Authorize(context.Background(), "", "key", []CostItem{{AmountUSDMilliCents: 1000}})
	if !perrors.Is(err, perrors.CodeInvalidParameter) {
		t.Fatalf("expected CodeInvalidParameter, got %v", err)
	}
}

func TestCostItemUnmarshalCeilRoundsFloat(t *testing.T) {
	var item CostItem
	if err := item.UnmarshalJSON([]byte(`{"amount_usd_milli_cents":100.2}`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if item.AmountUSDMilliCents != 101 {
		t.Fatalf("expected ceiling-rounded 101, got %d", item.AmountUSDMilliCents)
	}
}

func TestCostItemUnmarshalRejectsNonNumeric(t *testing.T) {
	var item CostItem
	if err := item.UnmarshalJSON([]byte(`{"amount_usd_milli_cents":"abc"}`)); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
}
