package auditlog

import (
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0),
		Actor:        "alice",
		Action:       "run.create",
		ResourceType: "run",
		ResourceID:   "r1",
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	bad := event
	bad.Action = " "
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for blank action")
	}
}

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Actor:        "alice",
		Action:       "run.create",
		ResourceType: "run",
		ResourceID:   "r1",
	}
	a, err := ComputeIntegritySHA256(event, []byte(`{}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, []byte(`{}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("hash mismatch: %q vs %q", a, b)
	}

	c, err := ComputeIntegritySHA256(event, []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == c {
		t.Fatalf("payload change did not change hash")
	}
}
