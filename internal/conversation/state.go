// Package conversation implements the post-sale messaging state machine:
// one record per sale, moved forward by inbound buyer messages, with a
// durable event journal as the source of truth and the marketplace's own
// message history as the import fallback.
package conversation

import "time"

// Status is a conversation stage. The set is closed and transitions only
// move forward; the bounded resend path stays inside StatusCodeSent.
type Status string

const (
	StatusNoContact        Status = "no_contact"
	StatusInstructionsSent Status = "instructions_sent"
	StatusCodeSent         Status = "code_sent"
	StatusCancelled        Status = "cancelled"
	StatusHumanEscalated   Status = "human_escalated"
)

// statusRank orders stages for the monotonicity check. Terminal stages share
// the top rank: none of them may yield to another.
var statusRank = map[Status]int{
	StatusNoContact:        0,
	StatusInstructionsSent: 1,
	StatusCodeSent:         2,
	StatusCancelled:        2,
	StatusHumanEscalated:   2,
}

// Terminal reports whether the engine stops auto-responding at this stage.
// StatusCodeSent still accepts the bounded resend and help paths.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusHumanEscalated
}

// CanAdvance reports whether moving from s to next respects forward-only
// ordering. Escalation is always allowed: it is the safety valve.
func (s Status) CanAdvance(next Status) bool {
	if next == StatusHumanEscalated {
		return !s.Terminal()
	}
	if s.Terminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// SaleState is the conversation record for one sale. It is a cache: losing
// it is harmless because the journal (or, failing that, the message history)
// rebuilds an equivalent record.
type SaleState struct {
	SaleID               string    `json:"sale_id"`
	OrderID              string    `json:"order_id"`
	SellerID             string    `json:"seller_id"`
	BuyerID              string    `json:"buyer_id"`
	ProductKey           string    `json:"product_key"`
	ProductTitle         string    `json:"product_title"`
	Status               Status    `json:"status"`
	CodeDelivered        string    `json:"code_delivered,omitempty"`
	LastBuyerMessageHash string    `json:"last_buyer_message_hash,omitempty"`
	ResendAttempts       int       `json:"resend_attempts"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Clone returns a copy safe to mutate.
func (s *SaleState) Clone() *SaleState {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Advance moves the record forward, refusing transitions that would go
// backwards. Returns whether the transition was applied.
func (s *SaleState) Advance(next Status) bool {
	if !s.Status.CanAdvance(next) {
		return false
	}
	s.Status = next
	s.UpdatedAt = time.Now()
	return true
}
