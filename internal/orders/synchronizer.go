// Package orders holds the single source of truth for the user's order
// collection: pull refreshes replace it wholesale, push updates patch
// individual statuses in place.
package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/lotirium/blockchain-supply-chain-fintech/internal/api"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/dispatch"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"go.uber.org/zap"
)

// Observer receives the published order sequence and error messages on
// the delivery context. Either callback may be nil.
type Observer struct {
	OnOrders func(orders []domain.Order)
	OnError  func(message string)
}

type Synchronizer struct {
	client     *api.Client
	dispatcher *dispatch.Serial
	logger     *zap.Logger

	mu         sync.Mutex
	held       []domain.Order
	refreshing bool
	observers  map[int]Observer
	order      []int
	nextID     int
}

func NewSynchronizer(client *api.Client, dispatcher *dispatch.Serial, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
		observers:  make(map[int]Observer),
	}
}

func (s *Synchronizer) Subscribe(o Observer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.order = append(s.order, id)
	return id
}

func (s *Synchronizer) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Orders returns a copy of the currently held sequence.
func (s *Synchronizer) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, len(s.held))
	copy(out, s.held)
	return out
}

// Refresh pulls the full order list in the background. While a refresh
// is in flight further calls are ignored, not queued; the returned bool
// reports whether this call started one. On failure the held sequence
// is left unchanged and the error observable fires.
func (s *Synchronizer) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return false
	}
	s.refreshing = true
	s.mu.Unlock()

	go func() {
		fetched, err := s.client.GetUserOrders(ctx)

		s.mu.Lock()
		s.refreshing = false
		if err != nil {
			s.mu.Unlock()
			s.publishError(fetchErrorMessage(err))
			return
		}
		// Newest first; ties keep server response order.
		sort.SliceStable(fetched, func(i, j int) bool {
			return fetched[i].CreatedAt.After(fetched[j].CreatedAt)
		})
		s.held = fetched
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.publishOrders(snapshot)
	}()
	return true
}

// OnOrderUpdate applies a push update. Only the status of the matching
// order changes; an unknown id is dropped, which means an order created
// after the last refresh stays invisible until the next one.
func (s *Synchronizer) OnOrderUpdate(orderID string, status domain.OrderStatus) {
	s.mu.Lock()
	found := false
	for i := range s.held {
		if s.held[i].ID == orderID {
			s.held[i].Status = status
			found = true
			break
		}
	}
	var snapshot []domain.Order
	if found {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if !found {
		s.logger.Debug("Push update for unknown order dropped",
			zap.String("order_id", orderID),
			zap.String("status", string(status)))
		return
	}
	s.publishOrders(snapshot)
}

// FilterByStatus publishes a client-side filtered view of the held
// sequence without mutating it or touching the network. An empty
// status republishes the full view.
func (s *Synchronizer) FilterByStatus(status domain.OrderStatus) []domain.Order {
	s.mu.Lock()
	var view []domain.Order
	if status == "" {
		view = s.snapshotLocked()
	} else {
		for _, o := range s.held {
			if strings.EqualFold(string(o.Status), string(status)) {
				view = append(view, o)
			}
		}
	}
	s.mu.Unlock()

	s.publishOrders(view)
	return view
}

func (s *Synchronizer) snapshotLocked() []domain.Order {
	out := make([]domain.Order, len(s.held))
	copy(out, s.held)
	return out
}

func (s *Synchronizer) publishOrders(view []domain.Order) {
	for _, o := range s.snapshotObservers() {
		if o.OnOrders != nil {
			fn := o.OnOrders
			s.dispatcher.Post(func() { fn(view) })
		}
	}
}

func (s *Synchronizer) publishError(message string) {
	for _, o := range s.snapshotObservers() {
		if o.OnError != nil {
			fn := o.OnError
			s.dispatcher.Post(func() { fn(message) })
		}
	}
}

func (s *Synchronizer) snapshotObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, 0, len(s.order))
	for _, id := range s.order {
		if o, ok := s.observers[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

func fetchErrorMessage(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) {
		return "Failed to fetch orders: " + se.Message
	}
	return "Network error: " + err.Error()
}
