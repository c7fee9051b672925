package reader

import (
	"testing"

	"orderly/models"
)

func TestRegistry(t *testing.T) {
	var got Options
	Register(models.Gateio, func(o Options) Connector {
		got = o
		return &fakeConnector{url: o.URL}
	})

	c, err := New(models.Gateio, Options{URL: "ws://example"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c == nil || got.Depth != DefaultDepth || got.URL != "ws://example" {
		t.Fatalf("unexpected options: %+v", got)
	}

	if _, err := New(models.Coinbase, Options{}); err == nil {
		t.Fatal("expected error for unregistered venue")
	}

	found := false
	for _, ex := range Registered() {
		if ex == models.Gateio {
			found = true
		}
	}
	if !found {
		t.Fatal("gateio missing from Registered")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register(models.Gateio, func(Options) Connector { return nil })
}
