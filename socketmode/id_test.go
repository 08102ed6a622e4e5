package socketmode

import "testing"

// --- Unit Tests ---

func TestWssClientID_NewReconnectedID(t *testing.T) {
	tests := []struct {
		name string
		gen  uint8
		want uint8
	}{
		{"first reconnect", 0, 1},
		{"middle", 10, 11},
		{"last before wrap", 63, 64},
		{"wraps after 64", 64, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := WssClientID{InitialIndex: 3, TokenIndex: 1, ReconnectGeneration: tt.gen}
			next := id.NewReconnectedID()
			if next.InitialIndex != 3 || next.TokenIndex != 1 {
				t.Errorf("indexes changed: %+v", next)
			}
			if next.ReconnectGeneration != tt.want {
				t.Errorf("ReconnectGeneration = %d, want %d", next.ReconnectGeneration, tt.want)
			}
		})
	}
}

func TestWssClientID_FullCycle(t *testing.T) {
	id := WssClientID{}
	for i := 0; i < 65; i++ {
		id = id.NewReconnectedID()
	}
	if id.ReconnectGeneration != 0 {
		t.Errorf("after 65 reconnects generation = %d, want 0", id.ReconnectGeneration)
	}
}

func TestWssClientID_SameSlot(t *testing.T) {
	a := WssClientID{InitialIndex: 1, TokenIndex: 0, ReconnectGeneration: 0}
	if !a.SameSlot(a.NewReconnectedID()) {
		t.Error("reconnected id should share the slot")
	}
	if a.SameSlot(WssClientID{InitialIndex: 2}) {
		t.Error("different initial index should not share the slot")
	}
	if a.SameSlot(WssClientID{InitialIndex: 1, TokenIndex: 1}) {
		t.Error("different token index should not share the slot")
	}
}

func TestWssClientID_String(t *testing.T) {
	id := WssClientID{InitialIndex: 4, TokenIndex: 2, ReconnectGeneration: 7}
	if got := id.String(); got != "4/2/7" {
		t.Errorf("String() = %q, want 4/2/7", got)
	}
}
