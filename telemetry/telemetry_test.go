package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/groundstation/tmtc-broker/tcotmiv"
	"github.com/groundstation/tmtc-broker/telemetry"
)

type nameSet map[string]bool

func (s nameSet) HasSchema(name string) bool { return s[name] }

func TestBusFanout(t *testing.T) {
	bus := telemetry.NewBus(4)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	tmiv := &tcotmiv.Tmiv{Name: "realtime.obc.hk", PluginReceivedTime: time.Unix(0, 0)}
	if _, err := bus.Handle(context.Background(), tmiv); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub:
		if msg.Value.Name != "realtime.obc.hk" {
			t.Errorf("got %q want %q", msg.Value.Name, "realtime.obc.hk")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published Tmiv")
	}
}

func TestBusPublishWithNoSubscribersIsNoOp(t *testing.T) {
	bus := telemetry.NewBus(4)
	tmiv := &tcotmiv.Tmiv{Name: "realtime.obc.hk"}
	if _, err := bus.Handle(context.Background(), tmiv); err != nil {
		t.Fatal(err)
	}
}

func TestSanitizeHookRejectsUnknownName(t *testing.T) {
	hook := telemetry.NewSanitizeHook(nameSet{"realtime.obc.hk": true})

	if _, err := hook.Hook(context.Background(), &tcotmiv.Tmiv{Name: "realtime.obc.hk"}); err != nil {
		t.Fatal(err)
	}
	if _, err := hook.Hook(context.Background(), &tcotmiv.Tmiv{Name: "realtime.obc.nope"}); err == nil {
		t.Error("expected an error for an unknown telemetry name")
	}
}

func TestLastTmivStoreSetGet(t *testing.T) {
	store := telemetry.NewLastTmivStore(nameSet{"realtime.obc.hk": true}.HasSchema)

	got, err := store.Get("realtime.obc.hk")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected no value before any Set, got %v", got)
	}

	tmiv := &tcotmiv.Tmiv{Name: "realtime.obc.hk"}
	store.Set(tmiv)

	got, err = store.Get("realtime.obc.hk")
	if err != nil {
		t.Fatal(err)
	}
	if got != tmiv {
		t.Errorf("got %v want %v", got, tmiv)
	}

	if _, err := store.Get("realtime.obc.unknown"); err == nil {
		t.Error("expected an error for an unknown telemetry name")
	}
}

func TestStoreLastTmivHookForwardsAndStores(t *testing.T) {
	store := telemetry.NewLastTmivStore(nameSet{"realtime.obc.hk": true}.HasSchema)
	hook := telemetry.NewStoreLastTmivHook(store)

	tmiv := &tcotmiv.Tmiv{Name: "realtime.obc.hk"}
	forwarded, err := hook.Hook(context.Background(), tmiv)
	if err != nil {
		t.Fatal(err)
	}
	if forwarded != tmiv {
		t.Error("expected the hook to forward the same Tmiv pointer")
	}

	got, err := store.Get("realtime.obc.hk")
	if err != nil {
		t.Fatal(err)
	}
	if got != tmiv {
		t.Error("expected StoreLastTmivHook to have recorded the Tmiv")
	}
}
