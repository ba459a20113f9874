package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cloudpos/inventory-service/internal/model"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/internal/stock/dto"
	"github.com/cloudpos/inventory-service/pkg/cache"
	"github.com/shopspring/decimal"
)

type levelKey struct{ productID, storeID string }

type orderKey struct{ orderID, storeID string }

type memState struct {
	products  map[levelKey]model.Product
	levels    map[levelKey]model.StockLevel
	movements []model.StockMovement
	events    []model.StockEvent
	holds     map[orderKey][]model.Reservation
}

func (s memState) clone() memState {
	c := memState{
		products:  make(map[levelKey]model.Product, len(s.products)),
		levels:    make(map[levelKey]model.StockLevel, len(s.levels)),
		movements: append([]model.StockMovement(nil), s.movements...),
		events:    append([]model.StockEvent(nil), s.events...),
		holds:     make(map[orderKey][]model.Reservation, len(s.holds)),
	}
	for k, v := range s.holds {
		c.holds[k] = append([]model.Reservation(nil), v...)
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.levels {
		c.levels[k] = v
	}
	return c
}

// memRepo serializes whole transactions behind one mutex, which stands in for
// the row lock taken by LockStockLevel. Failed transactions leave no trace.
type memRepo struct {
	mu    sync.Mutex
	state memState

	failInsertMovement error
	failEnqueue        error
}

func newMemRepo() *memRepo {
	return &memRepo{state: memState{
		products: map[levelKey]model.Product{},
		levels:   map[levelKey]model.StockLevel{},
		holds:    map[orderKey][]model.Reservation{},
	}}
}

func (r *memRepo) addProduct(id, storeID string, minStock, reorder int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.products[levelKey{id, storeID}] = model.Product{
		ID: id, StoreID: storeID, Name: id, MinStockLevel: minStock, ReorderPoint: reorder,
		TrackStock: true, IsActive: true,
	}
}

func (r *memRepo) setLevel(productID, storeID string, qty, reserved int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.levels[levelKey{productID, storeID}] = model.StockLevel{
		ProductID: productID, StoreID: storeID, Quantity: qty, ReservedQuantity: reserved,
	}
}

func (r *memRepo) level(productID, storeID string) (model.StockLevel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.state.levels[levelKey{productID, storeID}]
	return l, ok
}

func (r *memRepo) movements() []model.StockMovement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.StockMovement(nil), r.state.movements...)
}

func (r *memRepo) events() []model.StockEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.StockEvent(nil), r.state.events...)
}

func (r *memRepo) reservations(orderID, storeID string) []model.Reservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Reservation(nil), r.state.holds[orderKey{orderID, storeID}]...)
}

func (r *memRepo) product(id, storeID string) model.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.products[levelKey{id, storeID}]
}

func (r *memRepo) RunInTx(ctx context.Context, fn func(tx stock.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&memTx{repo: r, state: &work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memRepo) GetStockLevel(ctx context.Context, productID, storeID, locationID string) (*model.StockLevel, error) {
	if locationID != "" {
		return nil, nil
	}
	l, ok := r.level(productID, storeID)
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *memRepo) FindAll(ctx context.Context, f *dto.StockLevelFilters) ([]model.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.StockLevel{}
	for k, l := range r.state.levels {
		if k.storeID == f.StoreID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *memRepo) FindLowStock(ctx context.Context, storeID string) ([]model.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.StockLevel{}
	for k, l := range r.state.levels {
		p := r.state.products[k]
		if k.storeID == storeID && p.TrackStock && l.Quantity <= p.MinStockLevel {
			l.MinStockLevel = p.MinStockLevel
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MinStockLevel-out[i].Quantity > out[j].MinStockLevel-out[j].Quantity
	})
	return out, nil
}

func (r *memRepo) InventoryValue(ctx context.Context, storeID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for k, l := range r.state.levels {
		if k.storeID == storeID {
			total = total.Add(l.TotalValue())
		}
	}
	return total, nil
}

func (r *memRepo) Reserve(ctx context.Context, productID, storeID string, quantity int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := levelKey{productID, storeID}
	l, ok := r.state.levels[k]
	if !ok || l.Quantity-l.ReservedQuantity < quantity {
		return false, nil
	}
	l.ReservedQuantity += quantity
	r.state.levels[k] = l
	return true, nil
}

func (r *memRepo) Release(ctx context.Context, productID, storeID string, quantity int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := levelKey{productID, storeID}
	l, ok := r.state.levels[k]
	if !ok {
		return nil
	}
	l.ReservedQuantity -= quantity
	if l.ReservedQuantity < 0 {
		l.ReservedQuantity = 0
	}
	r.state.levels[k] = l
	return nil
}

func (r *memRepo) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []model.StockMovement
	for i := len(r.state.movements) - 1; i >= 0; i-- {
		m := r.state.movements[i]
		if m.StoreID != f.StoreID || (f.ProductID != "" && m.ProductID != f.ProductID) || (f.Type != "" && m.Type != f.Type) {
			continue
		}
		matched = append(matched, m)
	}
	total := len(matched)
	if f.Offset >= total {
		return []model.StockMovement{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

type memTx struct {
	repo  *memRepo
	state *memState
}

func (t *memTx) GetProduct(ctx context.Context, productID, storeID string) (*model.Product, error) {
	p, ok := t.state.products[levelKey{productID, storeID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) LockStockLevel(ctx context.Context, productID, storeID string, now time.Time) (*model.StockLevel, error) {
	k := levelKey{productID, storeID}
	l, ok := t.state.levels[k]
	if !ok {
		l = model.StockLevel{ProductID: productID, StoreID: storeID, UpdatedAt: now}
		t.state.levels[k] = l
	}
	return &l, nil
}

func (t *memTx) UpdateStockLevel(ctx context.Context, level *model.StockLevel) error {
	if level.Quantity < 0 || level.ReservedQuantity > level.Quantity {
		return errors.New("check constraint violated")
	}
	t.state.levels[levelKey{level.ProductID, level.StoreID}] = *level
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	if t.repo.failInsertMovement != nil {
		return t.repo.failInsertMovement
	}
	t.state.movements = append(t.state.movements, *m)
	return nil
}

func (t *memTx) SyncProductQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) error {
	k := levelKey{productID, storeID}
	p := t.state.products[k]
	p.StockQuantity = quantity
	t.state.products[k] = p
	return nil
}

func (t *memTx) EnqueueEvent(ctx context.Context, e *model.StockEvent) error {
	if t.repo.failEnqueue != nil {
		return t.repo.failEnqueue
	}
	t.state.events = append(t.state.events, *e)
	return nil
}

func (t *memTx) GetReservations(ctx context.Context, orderID, storeID string) ([]model.Reservation, error) {
	return append([]model.Reservation{}, t.state.holds[orderKey{orderID, storeID}]...), nil
}

func (t *memTx) ReserveQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) (bool, error) {
	k := levelKey{productID, storeID}
	l, ok := t.state.levels[k]
	if !ok || l.Quantity-l.ReservedQuantity < quantity {
		return false, nil
	}
	l.ReservedQuantity += quantity
	t.state.levels[k] = l
	return true, nil
}

func (t *memTx) ReleaseQuantity(ctx context.Context, productID, storeID string, quantity int, now time.Time) error {
	k := levelKey{productID, storeID}
	l, ok := t.state.levels[k]
	if !ok {
		return nil
	}
	l.ReservedQuantity -= quantity
	if l.ReservedQuantity < 0 {
		l.ReservedQuantity = 0
	}
	t.state.levels[k] = l
	return nil
}

func (t *memTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	k := orderKey{res.OrderID, res.StoreID}
	for _, h := range t.state.holds[k] {
		if h.ProductID == res.ProductID {
			return errors.New("duplicate reservation")
		}
	}
	t.state.holds[k] = append(t.state.holds[k], *res)
	return nil
}

func (t *memTx) DeleteReservations(ctx context.Context, orderID, storeID string) ([]model.Reservation, error) {
	k := orderKey{orderID, storeID}
	held := append([]model.Reservation{}, t.state.holds[k]...)
	delete(t.state.holds, k)
	return held, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = b
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
