package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer answers every signatureSubscribe with a subscription ID and then
// runs notify for it.
func wsServer(t *testing.T, notify func(c *websocket.Conn, req wsRequest, subID int64)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		subID := int64(1000)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			if req.Method != "signatureSubscribe" {
				t.Errorf("expected signatureSubscribe, got %s", req.Method)
			}
			subID++
			if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: subID}); err != nil {
				return
			}
			if notify != nil {
				notify(c, req, subID)
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func signatureNotification(subID int64, slot int64, txErr interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "signatureNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value":   map[string]interface{}{"err": txErr},
			},
		},
	}
}

func TestWSClient_SubscribeSignature(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, req wsRequest, subID int64) {
		// Sent right after the subscription response.
		c.WriteJSON(signatureNotification(subID, 777, nil))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSignature(ctx, "sig1", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("SubscribeSignature: %v", err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			t.Fatal("channel closed without result")
		}
		if res.Signature != "sig1" || res.Slot != 777 || res.Err != nil {
			t.Errorf("unexpected result %+v", res)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for notification")
	}

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after one result")
	}
}

func TestWSClient_FailedTransaction(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, req wsRequest, subID int64) {
		c.WriteJSON(signatureNotification(subID, 5, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSignature(ctx, "sig2", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("SubscribeSignature: %v", err)
	}
	res := <-ch
	if res.Err == nil {
		t.Error("expected transaction error")
	}
}

func TestWSClient_ConnectionDropClosesSubscribers(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, req wsRequest, subID int64) {
		c.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeSignature(ctx, "sig3", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("SubscribeSignature: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close without a result")
		}
	case <-ctx.Done():
		t.Fatal("subscriber not released after connection drop")
	}
}

func TestWSClient_Close(t *testing.T) {
	url := wsServer(t, nil)

	client, err := NewWSClient(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	_, err = client.SubscribeSignature(context.Background(), "sig", CommitmentConfirmed)
	if !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}
