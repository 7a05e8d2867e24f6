// Package memory keeps users, items and purchases in process memory.
//
// It is the default storage driver and the fake store used by service and
// handler tests. RunAtomic holds the store lock for the whole callback and
// restores a snapshot when the callback fails, so partial writes never leak.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kondiv/shop/internal/domain"
)

type txKey struct{}

// Store implements the user, item and purchase repositories and domain.Transactor
type Store struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]*domain.User
	logins     map[string]uuid.UUID // login -> user id
	items      map[int64]*domain.Item
	purchases  map[uuid.UUID]*domain.Purchase
	nextItemID int64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:      make(map[uuid.UUID]*domain.User),
		logins:     make(map[string]uuid.UUID),
		items:      make(map[int64]*domain.Item),
		purchases:  make(map[uuid.UUID]*domain.Purchase),
		nextItemID: 1,
	}
}

// Users returns the store as a domain.UserRepository
func (s *Store) Users() *UserRepository { return &UserRepository{s} }

// Items returns the store as a domain.ItemRepository
func (s *Store) Items() *ItemRepository { return &ItemRepository{s} }

// Purchases returns the store as a domain.PurchaseRepository
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s} }

// RunAtomic executes fn while holding the store lock exclusively
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Ping always succeeds; it lets the store stand in for a database in readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// read and write skip locking when the caller already holds the lock via RunAtomic.
func (s *Store) read(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) write(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users      map[uuid.UUID]*domain.User
	logins     map[string]uuid.UUID
	items      map[int64]*domain.Item
	purchases  map[uuid.UUID]*domain.Purchase
	nextItemID int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:      make(map[uuid.UUID]*domain.User, len(s.users)),
		logins:     make(map[string]uuid.UUID, len(s.logins)),
		items:      make(map[int64]*domain.Item, len(s.items)),
		purchases:  make(map[uuid.UUID]*domain.Purchase, len(s.purchases)),
		nextItemID: s.nextItemID,
	}
	for k, v := range s.users {
		u := *v
		snap.users[k] = &u
	}
	for k, v := range s.logins {
		snap.logins[k] = v
	}
	for k, v := range s.items {
		it := *v
		snap.items[k] = &it
	}
	for k, v := range s.purchases {
		p := *v
		snap.purchases[k] = &p
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.logins = snap.logins
	s.items = snap.items
	s.purchases = snap.purchases
	s.nextItemID = snap.nextItemID
}

func loginKey(login string) string {
	return strings.ToLower(login)
}

func (s *Store) summary(id uuid.UUID) domain.UserSummary {
	if u, ok := s.users[id]; ok {
		return u.Summary()
	}
	return domain.UserSummary{ID: id}
}

// UserRepository implements domain.UserRepository on a Store
type UserRepository struct{ s *Store }

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	defer r.s.write(ctx)()

	if _, taken := r.s.logins[loginKey(user.Login)]; taken {
		return domain.Conflict("Login already taken")
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	u := *user
	r.s.users[u.ID] = &u
	r.s.logins[loginKey(u.Login)] = u.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	defer r.s.read(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	defer r.s.read(ctx)()

	id, ok := r.s.logins[loginKey(login)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *r.s.users[id]
	return &out, nil
}

func (r *UserRepository) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	defer r.s.read(ctx)()

	_, ok := r.s.logins[loginKey(login)]
	return ok, nil
}

// ItemRepository implements domain.ItemRepository on a Store
type ItemRepository struct{ s *Store }

func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	defer r.s.write(ctx)()

	if _, ok := r.s.users[item.SellerID]; !ok {
		return domain.ErrNotFound
	}
	item.ID = r.s.nextItemID
	r.s.nextItemID++
	it := *item
	r.s.items[it.ID] = &it
	return nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	defer r.s.read(ctx)()

	it, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *it
	return &out, nil
}

func (r *ItemRepository) GetView(ctx context.Context, id int64) (*domain.ItemView, error) {
	defer r.s.read(ctx)()

	it, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.ItemView{Item: *it, Seller: r.s.summary(it.SellerID)}, nil
}

func (r *ItemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]*domain.ItemView, error) {
	defer r.s.read(ctx)()

	ids := make([]int64, 0, len(r.s.items))
	for id, it := range r.s.items {
		if filter.Category != nil && it.Category != *filter.Category {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*domain.ItemView, 0)
	for _, id := range page(ids, filter.Offset, filter.Limit) {
		it := r.s.items[id]
		out = append(out, &domain.ItemView{Item: *it, Seller: r.s.summary(it.SellerID)})
	}
	return out, nil
}

func (r *ItemRepository) Update(ctx context.Context, item *domain.Item) error {
	defer r.s.write(ctx)()

	if _, ok := r.s.items[item.ID]; !ok {
		return domain.ErrNotFound
	}
	it := *item
	r.s.items[it.ID] = &it
	return nil
}

func (r *ItemRepository) Delete(ctx context.Context, id int64) error {
	defer r.s.write(ctx)()

	if _, ok := r.s.items[id]; !ok {
		return domain.ErrNotFound
	}
	for _, p := range r.s.purchases {
		if p.ItemID == id {
			return domain.Conflict("Item is referenced by purchases")
		}
	}
	delete(r.s.items, id)
	return nil
}

// PurchaseRepository implements domain.PurchaseRepository on a Store
type PurchaseRepository struct{ s *Store }

func (r *PurchaseRepository) Create(ctx context.Context, purchase *domain.Purchase) error {
	defer r.s.write(ctx)()

	if _, ok := r.s.items[purchase.ItemID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := r.s.users[purchase.BuyerID]; !ok {
		return domain.ErrNotFound
	}
	if _, exists := r.s.purchases[purchase.ID]; exists {
		return domain.Conflict("Purchase already recorded")
	}
	p := *purchase
	r.s.purchases[p.ID] = &p
	return nil
}

func (r *PurchaseRepository) GetView(ctx context.Context, id uuid.UUID) (*domain.PurchaseView, error) {
	defer r.s.read(ctx)()

	p, ok := r.s.purchases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.view(p), nil
}

func (r *PurchaseRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, offset, limit int) ([]*domain.PurchaseView, error) {
	defer r.s.read(ctx)()

	var owned []*domain.Purchase
	for _, p := range r.s.purchases {
		if p.BuyerID == buyerID {
			owned = append(owned, p)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.Before(owned[j].CreatedAt)
		}
		return owned[i].ID.String() < owned[j].ID.String()
	})

	out := make([]*domain.PurchaseView, 0)
	for _, p := range page(owned, offset, limit) {
		out = append(out, r.view(p))
	}
	return out, nil
}

func (r *PurchaseRepository) view(p *domain.Purchase) *domain.PurchaseView {
	v := &domain.PurchaseView{
		Purchase: *p,
		Item:     domain.ItemSummary{ID: p.ItemID},
		Buyer:    r.s.summary(p.BuyerID),
		Seller:   r.s.summary(p.SellerID),
	}
	if it, ok := r.s.items[p.ItemID]; ok {
		v.Item.Name = it.Name
		v.Item.Price = it.Price
	}
	return v
}

func page[T any](all []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return all[offset:end]
}
