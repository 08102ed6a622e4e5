package socketmode

import "fmt"

// maxReconnectGeneration is the last generation before wrapping to zero.
const maxReconnectGeneration = 64

// WssClientID identifies one connection slot across reconnects.
type WssClientID struct {
	InitialIndex        uint32
	TokenIndex          uint32
	ReconnectGeneration uint8
}

// NewReconnectedID returns the id for the replacement of this slot's client.
func (id WssClientID) NewReconnectedID() WssClientID {
	next := id
	if id.ReconnectGeneration >= maxReconnectGeneration {
		next.ReconnectGeneration = 0
	} else {
		next.ReconnectGeneration = id.ReconnectGeneration + 1
	}
	return next
}

// SameSlot reports whether both ids refer to the same slot, ignoring generation.
func (id WssClientID) SameSlot(other WssClientID) bool {
	return id.InitialIndex == other.InitialIndex && id.TokenIndex == other.TokenIndex
}

func (id WssClientID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.InitialIndex, id.TokenIndex, id.ReconnectGeneration)
}
