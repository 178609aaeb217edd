package domain

import (
	"testing"
	"time"

	"carebot-cloud/internal/apperr"
)

func TestValidateParams(t *testing.T) {
	cases := []struct {
		kind   Kind
		params map[string]any
		ok     bool
	}{
		{KindMoveTo, map[string]any{"location": "kitchen"}, true},
		{KindMoveTo, map[string]any{}, false},
		{KindMoveTo, map[string]any{"location": ""}, false},
		{KindMoveTo, map[string]any{"location": 12.0}, false},
		{KindSpeak, map[string]any{"text": "good morning"}, true},
		{KindSetVolume, map[string]any{"volume": 55.0}, true},
		{KindSetVolume, map[string]any{"volume": 120.0}, false},
		{KindSetVolume, map[string]any{"volume": "loud"}, false},
		{KindStartPatrol, nil, true},
		{Kind("DANCE"), nil, true},
	}
	for _, tc := range cases {
		err := ValidateParams(tc.kind, tc.params)
		if tc.ok && err != nil {
			t.Fatalf("%s %v: unexpected error %v", tc.kind, tc.params, err)
		}
		if !tc.ok && apperr.KindOf(err) != apperr.KindInvalidRequest {
			t.Fatalf("%s %v: expected invalid request, got %v", tc.kind, tc.params, err)
		}
	}
}

func TestTransitions(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusReceived},
		{StatusPending, StatusCancelled},
		{StatusReceived, StatusInProgress},
		{StatusReceived, StatusCompleted},
		{StatusInProgress, StatusFailed},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Fatalf("%s -> %s should be allowed", pair[0], pair[1])
		}
	}
	denied := [][2]Status{
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusFailed},
		{StatusCancelled, StatusPending},
		{StatusInProgress, StatusReceived},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Fatalf("%s -> %s should be denied", pair[0], pair[1])
		}
	}
}

func TestSortForDeliveryTieBreak(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cmds := []Command{
		{ID: "c", IssuedAt: t0.Add(time.Second), Seq: 1},
		{ID: "b", IssuedAt: t0, Seq: 3},
		{ID: "a", IssuedAt: t0, Seq: 2},
	}
	SortForDelivery(cmds)
	if cmds[0].ID != "a" || cmds[1].ID != "b" || cmds[2].ID != "c" {
		t.Fatalf("unexpected order: %s %s %s", cmds[0].ID, cmds[1].ID, cmds[2].ID)
	}
}
