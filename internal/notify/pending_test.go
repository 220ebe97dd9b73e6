package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	myredis "edulead_chat_server/internal/dao/redis"
)

func TestQueueFIFOOrder(t *testing.T) {
	queue := NewQueue(myredis.NewMemoryStore(), 50, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := queue.Append(ctx, Notification{
			TargetUserId: "c1",
			Event:        "new_message",
			Payload:      json.RawMessage(`{"n":` + strconv.Itoa(i) + `}`),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := queue.Drain(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(got))
	}
	for i, n := range got {
		want := `{"n":` + strconv.Itoa(i) + `}`
		if string(n.Payload) != want {
			t.Fatalf("out of order at %d: got %s want %s", i, n.Payload, want)
		}
	}
}

func TestQueueCapKeepsMostRecent(t *testing.T) {
	queue := NewQueue(myredis.NewMemoryStore(), 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := queue.Append(ctx, Notification{
			TargetUserId: "c1",
			Event:        "new_message",
			Payload:      json.RawMessage(`{"n":` + strconv.Itoa(i) + `}`),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := queue.Drain(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("cap 3 must keep 3 entries, got %d", len(got))
	}
	if string(got[0].Payload) != `{"n":2}` || string(got[2].Payload) != `{"n":4}` {
		t.Fatalf("must keep the most recent entries, got %s .. %s", got[0].Payload, got[2].Payload)
	}
}

func TestQueueDrainIsolatedPerUser(t *testing.T) {
	queue := NewQueue(myredis.NewMemoryStore(), 50, time.Hour)
	ctx := context.Background()

	_ = queue.Append(ctx, Notification{TargetUserId: "c1", Event: "new_lead"})
	_ = queue.Append(ctx, Notification{TargetUserId: "c2", Event: "new_lead"})

	got, err := queue.Drain(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry for c1, got %d", len(got))
	}

	other, _ := queue.Drain(ctx, "c2")
	if len(other) != 1 {
		t.Fatal("draining c1 must not touch c2")
	}
}

func TestLedgerFirstSeen(t *testing.T) {
	ledger := NewLedger(myredis.NewMemoryStore(), 30*time.Second)
	ctx := context.Background()

	at := time.Date(2026, 3, 2, 10, 0, 5, 0, time.UTC)
	key := ledger.EventKey("c1", "s1", "new_lead", at)

	first, err := ledger.FirstSeen(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Fatal("first marker must report first seen")
	}

	again, err := ledger.FirstSeen(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if again {
		t.Fatal("repeat inside the window must not be first")
	}

	// A different actor never collides.
	otherKey := ledger.EventKey("c1", "s2", "new_lead", at)
	if otherKey == key {
		t.Fatal("actors must have distinct event keys")
	}

	// Neither does the same trigger addressed to another recipient.
	otherTarget := ledger.EventKey("c2", "s1", "new_lead", at)
	if otherTarget == key {
		t.Fatal("recipients must have distinct event keys")
	}
}
