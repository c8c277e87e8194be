package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestDeliveredAsMapping(t *testing.T) {
	testCases := []struct {
		out  Event
		in   Event
		want bool
	}{
		{EventInitiate, EventIncoming, true},
		{EventAccept, EventAccepted, true},
		{EventDecline, EventDeclined, true},
		{EventCancel, EventEnded, true},
		{EventEnd, EventEnded, true},
		{EventOffer, EventOffer, true},
		{EventAnswer, EventAnswer, true},
		{EventCandidate, EventCandidate, true},
		{EventIncoming, "", false}, // inbound names are not routable
		{Event("bogus"), "", false},
	}

	for _, tc := range testCases {
		in, ok := DeliveredAs(tc.out)
		if ok != tc.want {
			t.Errorf("DeliveredAs(%q): ok = %v, want %v", tc.out, ok, tc.want)
		}
		if ok && in != tc.in {
			t.Errorf("DeliveredAs(%q) = %q, want %q", tc.out, in, tc.in)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(InitiatePayload{
		CallID: "alice_bob_123",
		Caller: UserInfo{ID: "alice", Name: "Alice", Avatar: "a.png"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	env := Envelope{Event: EventInitiate, From: "alice", To: "bob", Data: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.Event != EventInitiate || decoded.From != "alice" || decoded.To != "bob" {
		t.Errorf("envelope fields mangled: %+v", decoded)
	}

	var p InitiatePayload
	if err := json.Unmarshal(decoded.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.CallID != "alice_bob_123" || p.Caller.ID != "alice" {
		t.Errorf("payload mangled: %+v", p)
	}
}

func TestPipeTranslatesAndDelivers(t *testing.T) {
	a, b := NewPipe("alice", "bob")
	defer a.Close()
	defer b.Close()

	got := make(chan Envelope, 1)
	b.On(EventIncoming, func(from string, data json.RawMessage) {
		got <- Envelope{Event: EventIncoming, From: from, Data: data}
	})

	err := a.Send(EventInitiate, "bob", InitiatePayload{CallID: "c1", Caller: UserInfo{ID: "alice"}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-got:
		if env.From != "alice" {
			t.Errorf("From = %q, want alice", env.From)
		}
		var p InitiatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.CallID != "c1" {
			t.Errorf("CallID = %q, want c1", p.CallID)
		}
	case <-time.After(time.Second):
		t.Fatal("incoming event never delivered")
	}
}

func TestPipePreservesOrder(t *testing.T) {
	a, b := NewPipe("alice", "bob")
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	var calls []string
	done := make(chan struct{})
	b.On(EventCandidate, func(from string, data json.RawMessage) {
		var p CandidatePayload
		_ = json.Unmarshal(data, &p)
		mu.Lock()
		calls = append(calls, p.Candidate)
		if len(calls) == 10 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		if err := a.Send(EventCandidate, "bob", CandidatePayload{CallID: "c1", Candidate: string(rune('a' + i))}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all candidates delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, c := range calls {
		if c != string(rune('a'+i)) {
			t.Fatalf("out of order at %d: got %q", i, c)
		}
	}
}

func TestPipeDropsWrongTarget(t *testing.T) {
	a, b := NewPipe("alice", "bob")
	defer a.Close()
	defer b.Close()

	delivered := make(chan struct{}, 1)
	b.On(EventIncoming, func(string, json.RawMessage) { delivered <- struct{}{} })

	if err := a.Send(EventInitiate, "carol", InitiatePayload{CallID: "c1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-delivered:
		t.Fatal("message for carol delivered to bob")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPipeRejectsUnroutableEvent(t *testing.T) {
	a, b := NewPipe("alice", "bob")
	defer a.Close()
	defer b.Close()

	if err := a.Send(EventIncoming, "bob", nil); err == nil {
		t.Fatal("expected error for unroutable event")
	}
}
