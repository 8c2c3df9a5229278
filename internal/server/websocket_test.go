package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"devicefarm-server/internal/auth"
	"devicefarm-server/internal/hub"
)

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// pingPong also guarantees the connection is registered with the hub.
func pingPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp map[string]any
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp["type"] != "pong" {
		data, _ := json.Marshal(resp)
		t.Fatalf("expected pong, got %s", string(data))
	}
}

func TestWebSocketPingPong(t *testing.T) {
	tokenCfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	e := newTestEnv(t, tokenCfg)

	tok, err := auth.CreateToken("operator", tokenCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn := dialWS(t, srv, "?token="+tok)
	pingPong(t, conn)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"})
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %v", resp)
	}
}

func TestWebSocketReceivesDeviceEvents(t *testing.T) {
	e := newTestEnv(t, auth.TokenConfig{})
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn := dialWS(t, srv, "?topics="+hub.TopicDevice)
	pingPong(t, conn)

	// Settings events are filtered out for this subscriber.
	e.hub.Publish(hub.TopicSettings, map[string]string{"adb_mode": "tcp"})

	body, _ := json.Marshal(map[string]any{"serial": "S1", "agent_ip": "10.0.0.1", "online": 1})
	resp, err := http.Post(srv.URL+"/api/device", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/device: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		Type  string         `json:"type"`
		Topic string         `json:"topic"`
		Data  map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Type != "event" || ev.Topic != hub.TopicDevice || ev.Data["serial"] != "S1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
