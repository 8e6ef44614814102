package inventory

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource keeps codes in process memory. Used in tests and local runs
// without a database.
type MemorySource struct {
	mu        sync.Mutex
	available map[string][]string
	reserved  map[string]string
	delivered map[string]string
	nextID    int
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		available: make(map[string][]string),
		reserved:  make(map[string]string),
		delivered: make(map[string]string),
	}
}

// Load adds codes for a product.
func (s *MemorySource) Load(productKey string, codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[productKey] = append(s.available[productKey], codes...)
}

// AddCodes loads new codes, skipping blanks and codes already present.
// Returns how many were added.
func (s *MemorySource) AddCodes(_ context.Context, productKey string, codes []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.available[productKey]))
	for _, code := range s.available[productKey] {
		existing[code] = struct{}{}
	}

	added := 0
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := existing[code]; ok {
			continue
		}
		existing[code] = struct{}{}
		s.available[productKey] = append(s.available[productKey], code)
		added++
	}
	return added, nil
}

// Draw claims the oldest loaded code.
func (s *MemorySource) Draw(_ context.Context, productKey string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.available[productKey]
	if len(codes) == 0 {
		return nil, ErrOutOfStock
	}
	code := codes[0]
	s.available[productKey] = codes[1:]
	s.nextID++
	id := fmt.Sprintf("mem-%d", s.nextID)
	s.reserved[id] = code
	return &Reservation{ID: id, ProductKey: productKey, Code: code}, nil
}

// MarkDelivered moves a reservation to delivered.
func (s *MemorySource) MarkDelivered(_ context.Context, res *Reservation, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reserved[res.ID]; !ok {
		return fmt.Errorf("inventory: code %s is not reserved", res.ID)
	}
	delete(s.reserved, res.ID)
	s.delivered[res.Code] = orderID
	return nil
}

// Release returns a reservation to the pool.
func (s *MemorySource) Release(_ context.Context, res *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reserved[res.ID]; !ok {
		return nil
	}
	delete(s.reserved, res.ID)
	s.available[res.ProductKey] = append([]string{res.Code}, s.available[res.ProductKey]...)
	return nil
}

// Counts reports loaded codes per product.
func (s *MemorySource) Counts(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.available))
	for key, codes := range s.available {
		counts[key] = len(codes)
	}
	return counts, nil
}

// DeliveredTo reports which order a code went to, for tests.
func (s *MemorySource) DeliveredTo(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID, ok := s.delivered[code]
	return orderID, ok
}

var _ Source = (*MemorySource)(nil)
