package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventKind tags a journal entry. The journal is append-only; the state
// machine is a pure fold over a sale's events.
type EventKind string

const (
	EventOrderPaid        EventKind = "order_paid"
	EventInstructionsSent EventKind = "instructions_sent"
	EventCodeDelivered    EventKind = "code_delivered"
	EventCodeResent       EventKind = "code_resent"
	EventCancelled        EventKind = "cancelled"
	EventEscalated        EventKind = "escalated"
)

// Event is one journal entry.
type Event struct {
	SaleID       string
	Kind         EventKind
	OrderID      string
	BuyerID      string
	ProductKey   string
	ProductTitle string
	Code         string
	Note         string
	CreatedAt    time.Time
}

// Journal stores conversation events durably.
type Journal interface {
	Append(ctx context.Context, evt Event) error
	List(ctx context.Context, saleID string) ([]Event, error)
}

// Fold replays a sale's events into a SaleState. The fold is pure and order
// tolerant within reason: terminal events win, delivery pins the code, and
// resends only count after delivery.
func Fold(saleID string, events []Event) *SaleState {
	if len(events) == 0 {
		return nil
	}

	state := &SaleState{
		SaleID: saleID,
		Status: StatusNoContact,
	}
	for _, evt := range events {
		if state.CreatedAt.IsZero() || evt.CreatedAt.Before(state.CreatedAt) {
			state.CreatedAt = evt.CreatedAt
		}
		if evt.CreatedAt.After(state.UpdatedAt) {
			state.UpdatedAt = evt.CreatedAt
		}
		if evt.OrderID != "" {
			state.OrderID = evt.OrderID
		}
		if evt.BuyerID != "" {
			state.BuyerID = evt.BuyerID
		}
		if evt.ProductKey != "" {
			state.ProductKey = evt.ProductKey
		}
		if evt.ProductTitle != "" {
			state.ProductTitle = evt.ProductTitle
		}

		switch evt.Kind {
		case EventOrderPaid:
			// Status stays wherever it is; order_paid only seeds identity.
		case EventInstructionsSent:
			if state.Status.CanAdvance(StatusInstructionsSent) {
				state.Status = StatusInstructionsSent
			}
		case EventCodeDelivered:
			if state.CodeDelivered == "" {
				state.CodeDelivered = evt.Code
			}
			if state.Status.CanAdvance(StatusCodeSent) {
				state.Status = StatusCodeSent
			}
		case EventCodeResent:
			if state.CodeDelivered != "" {
				state.ResendAttempts++
			}
		case EventCancelled:
			if state.Status.CanAdvance(StatusCancelled) {
				state.Status = StatusCancelled
			}
		case EventEscalated:
			if state.Status.CanAdvance(StatusHumanEscalated) {
				state.Status = StatusHumanEscalated
			}
		}
	}
	return state
}

type journalQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresJournal appends to the conversation_events table.
type PostgresJournal struct {
	pool journalQuerier
}

// NewPostgresJournal initializes a journal backed by pgxpool.
func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresJournal{pool: pool}
}

func newPostgresJournalWithExec(exec journalQuerier) *PostgresJournal {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &PostgresJournal{pool: exec}
}

func (j *PostgresJournal) Append(ctx context.Context, evt Event) error {
	query := `
		INSERT INTO conversation_events
			(sale_id, kind, order_id, buyer_id, product_key, product_title, code, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := j.pool.Exec(ctx, query,
		evt.SaleID,
		string(evt.Kind),
		evt.OrderID,
		evt.BuyerID,
		evt.ProductKey,
		evt.ProductTitle,
		evt.Code,
		evt.Note,
	); err != nil {
		return fmt.Errorf("conversation: append %s event: %w", evt.Kind, err)
	}
	return nil
}

func (j *PostgresJournal) List(ctx context.Context, saleID string) ([]Event, error) {
	query := `
		SELECT kind, order_id, buyer_id, product_key, product_title, code, note, created_at
		FROM conversation_events
		WHERE sale_id = $1
		ORDER BY created_at, id
	`
	rows, err := j.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		evt := Event{SaleID: saleID}
		var kind string
		if err := rows.Scan(&kind, &evt.OrderID, &evt.BuyerID, &evt.ProductKey, &evt.ProductTitle, &evt.Code, &evt.Note, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan event row: %w", err)
		}
		evt.Kind = EventKind(kind)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate event rows: %w", err)
	}
	return events, nil
}

// MemoryJournal keeps events in memory for tests and local runs.
type MemoryJournal struct {
	mu     sync.Mutex
	events map[string][]Event
	now    func() time.Time
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		events: make(map[string][]Event),
		now:    time.Now,
	}
}

func (j *MemoryJournal) Append(_ context.Context, evt Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = j.now()
	}
	j.events[evt.SaleID] = append(j.events[evt.SaleID], evt)
	return nil
}

func (j *MemoryJournal) List(_ context.Context, saleID string) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	events := j.events[saleID]
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}

var _ Journal = (*PostgresJournal)(nil)
var _ Journal = (*MemoryJournal)(nil)
