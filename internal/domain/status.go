package domain

// ReceiptStatus is the per-recipient delivery state of a message.
type ReceiptStatus string

const (
	ReceiptSent      ReceiptStatus = "SENT"
	ReceiptDelivered ReceiptStatus = "DELIVERED"
	ReceiptRead      ReceiptStatus = "READ"
)

// Rank orders receipt statuses. A receipt transition is applied only
// when it increases the rank; anything else is ignored.
func (s ReceiptStatus) Rank() int {
	switch s {
	case ReceiptSent:
		return 1
	case ReceiptDelivered:
		return 2
	case ReceiptRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a member of the closed status set.
func (s ReceiptStatus) Valid() bool {
	return s.Rank() > 0
}

// Below returns the statuses strictly below s, for use in SQL guards.
func (s ReceiptStatus) Below() []string {
	below := make([]string, 0, 2)
	for _, candidate := range []ReceiptStatus{ReceiptSent, ReceiptDelivered} {
		if candidate.Rank() < s.Rank() {
			below = append(below, string(candidate))
		}
	}
	return below
}

// PresenceStatus is a user's liveness state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
)

// ToggleAction is the outcome of a reaction toggle.
type ToggleAction string

const (
	ToggleAdded   ToggleAction = "added"
	ToggleRemoved ToggleAction = "removed"
)
