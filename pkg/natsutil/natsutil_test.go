package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

type payload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := Connect(srv.ClientURL(), "natsutil-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestPublishWithHeader(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("test.pub", ch)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	h := nats.Header{}
	h.Set(RetryHeader, "2")
	if err := PublishWithHeader(context.Background(), nc, "test.pub", h, payload{Name: "hello", Value: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		var p payload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			t.Fatal(err)
		}
		if p.Name != "hello" || p.Value != 1 {
			t.Fatalf("unexpected payload: %+v", p)
		}
		if RetryCount(msg) != 2 {
			t.Fatalf("retry header lost: %v", msg.Header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribe(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan payload, 1)
	sub, err := Subscribe(nc, "test.sub", func(_ context.Context, p payload) {
		ch <- p
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	// Malformed messages are dropped before the handler.
	nc.Publish("test.sub", []byte("{not json"))
	if err := Publish(context.Background(), nc, "test.sub", payload{Name: "world", Value: 2}); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-ch:
		if p.Name != "world" || p.Value != 2 {
			t.Fatalf("unexpected: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
}

func TestDecode(t *testing.T) {
	_, v, err := Decode[payload](&nats.Msg{Subject: "x", Data: []byte(`{"name":"a","value":3}`)})
	if err != nil || v.Value != 3 {
		t.Fatalf("got %+v, %v", v, err)
	}
	if _, _, err := Decode[payload](&nats.Msg{Subject: "x", Data: []byte("nope")}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRetryCount(t *testing.T) {
	if RetryCount(&nats.Msg{}) != 0 {
		t.Error("missing header should be zero")
	}
	m := &nats.Msg{Header: nats.Header{}}
	m.Header.Set(RetryHeader, "abc")
	if RetryCount(m) != 0 {
		t.Error("malformed header should be zero")
	}
	m.Header.Set(RetryHeader, "3")
	if RetryCount(m) != 3 {
		t.Error("expected 3")
	}
}

func TestRetryCause(t *testing.T) {
	if RetryCause(&nats.Msg{}) != "" {
		t.Error("first delivery should have no cause")
	}
	m := &nats.Msg{Header: nats.Header{}}
	m.Header.Set(CauseHeader, "embedding backend timeout")
	if RetryCause(m) != "embedding backend timeout" {
		t.Errorf("got %q", RetryCause(m))
	}
}
