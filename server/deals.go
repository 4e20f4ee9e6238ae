package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Deal struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type DealRepo interface {
	Create(deal *Deal) error
	List(ownerID string) ([]*Deal, error) // empty ownerID lists all deals
}

var _ DealRepo = (*InMemoryDealRepo)(nil)

var ErrInvalidDeal = errors.New("invalid deal")

type InMemoryDealRepo struct {
	deals map[string]*Deal
	lock  sync.RWMutex
}

func NewInMemoryDealRepo() *InMemoryDealRepo {
	return &InMemoryDealRepo{deals: make(map[string]*Deal)}
}

func (r *InMemoryDealRepo) Create(deal *Deal) error {
	if deal.Title == "" || deal.OwnerID == "" {
		return ErrInvalidDeal
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = time.Now().UTC()
	}
	stored := *deal
	r.deals[stored.ID] = &stored
	return nil
}

func (r *InMemoryDealRepo) List(ownerID string) ([]*Deal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	deals := make([]*Deal, 0, len(r.deals))
	for _, d := range r.deals {
		if ownerID != "" && d.OwnerID != ownerID {
			continue
		}
		deal := *d
		deals = append(deals, &deal)
	}
	sort.Slice(deals, func(i, j int) bool {
		return deals[i].CreatedAt.Before(deals[j].CreatedAt)
	})
	return deals, nil
}
