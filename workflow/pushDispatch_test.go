package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type fakeGateway struct {
	mu      sync.Mutex
	batches [][]PushMessage
	tickets []PushTicket
	err     error
}

func (f *fakeGateway) SendBatch(_ context.Context, messages []PushMessage) ([]PushTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, messages)
	if f.err != nil {
		return nil, f.err
	}
	return f.tickets, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestRestyPushGateway_SendBatch(t *testing.T) {
	var gotBody []PushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"t1"},{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("PUSH_GATEWAY_URL", srv.URL)
	gateway := NewRestyPushGateway()

	tickets, err := gateway.SendBatch(context.Background(), []PushMessage{
		{To: "tok-a", Title: "Order update", Body: "Order X is now shipped.", Priority: "high"},
		{To: "tok-b", Title: "Order update", Body: "Order X is now shipped.", Priority: "high"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(gotBody) != 2 || gotBody[0].To != "tok-a" || gotBody[1].To != "tok-b" {
		t.Fatalf("request batch mismatch: %+v", gotBody)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
	// Positional correlation: second ticket belongs to tok-b.
	if tickets[0].Status != "ok" || tickets[1].Details.Error != "DeviceNotRegistered" {
		t.Fatalf("tickets out of order: %+v", tickets)
	}
}

func TestRestyPushGateway_NonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	t.Setenv("PUSH_GATEWAY_URL", srv.URL)
	gateway := NewRestyPushGateway()

	if _, err := gateway.SendBatch(context.Background(), []PushMessage{{To: "tok"}}); err == nil {
		t.Fatalf("expected error on 502 response")
	}
}

func TestIsPermanentDeliveryFailure(t *testing.T) {
	ok := PushTicket{Status: "ok"}
	if isPermanentDeliveryFailure(ok) {
		t.Fatalf("ok ticket is not a failure")
	}

	transient := PushTicket{Status: "error"}
	transient.Details.Error = "MessageRateExceeded"
	if isPermanentDeliveryFailure(transient) {
		t.Fatalf("rate limiting is transient, token must be kept")
	}

	gone := PushTicket{Status: "error"}
	gone.Details.Error = "DeviceNotRegistered"
	if !isPermanentDeliveryFailure(gone) {
		t.Fatalf("DeviceNotRegistered must deregister the token")
	}
}
