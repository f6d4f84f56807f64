// Package store holds the in-memory repositories behind the api package.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/storefront-api/internal/api"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

// Memory implements api.Users, api.Catalog and api.Orders. Returned values are
// copies; callers cannot mutate stored records.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]api.User // by id
	products   map[string]api.Product
	categories []api.Category
	orders     map[string]api.Order
	orderSeq   []string // ids in creation order
	now        func() time.Time
}

type Option func(*Memory)

func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithCatalog replaces the demo catalog.
func WithCatalog(cats []api.Category, products []api.Product) Option {
	return func(m *Memory) {
		m.categories = append([]api.Category(nil), cats...)
		m.products = make(map[string]api.Product, len(products))
		for _, p := range products {
			m.products[p.ID] = p
		}
	}
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		users:  make(map[string]api.User),
		orders: make(map[string]api.Order),
		now:    time.Now,
	}
	WithCatalog(DemoCategories, DemoProducts)(m)
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddUser stores u, assigning an id when empty. Usernames and emails are
// unique, compared case-insensitively.
func (m *Memory) AddUser(u api.User) (api.User, error) {
	if u.Username == "" || u.PasswordHash == "" {
		return api.User{}, xerrors.New("store: user needs a username and password hash")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return api.User{}, xerrors.Newf("store: username %q already exists", u.Username)
		}
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return api.User{}, xerrors.Newf("store: email %q already exists", u.Email)
		}
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) ByUsername(_ context.Context, username string) (api.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return api.User{}, api.ErrNotFound
}

func (m *Memory) ByEmail(_ context.Context, email string) (api.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email != "" && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return api.User{}, api.ErrNotFound
}

func (m *Memory) ByID(_ context.Context, id string) (api.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return api.User{}, api.ErrNotFound
	}
	return u, nil
}

func (m *Memory) UpdateProfile(_ context.Context, id string, p api.ProfileUpdate) (api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return api.User{}, api.ErrNotFound
	}
	if p.Email != nil && !strings.EqualFold(*p.Email, u.Email) {
		for otherID, other := range m.users {
			if otherID != id && strings.EqualFold(other.Email, *p.Email) {
				return api.User{}, xerrors.New("store: email already in use")
			}
		}
		u.Email = *p.Email
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.FirstName, p.FirstName)
	set(&u.LastName, p.LastName)
	set(&u.Phone, p.Phone)
	set(&u.AvatarURL, p.AvatarURL)
	m.users[id] = u
	return u, nil
}

func (m *Memory) Products(_ context.Context, category string) ([]api.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]api.Product, 0, len(m.products))
	for _, p := range m.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Product(_ context.Context, id string) (api.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return api.Product{}, api.ErrNotFound
	}
	return p, nil
}

func (m *Memory) Categories(_ context.Context) ([]api.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]api.Category(nil), m.categories...), nil
}

func (m *Memory) Create(_ context.Context, o api.Order) (api.Order, error) {
	if o.UserID == "" || len(o.Items) == 0 {
		return api.Order{}, xerrors.New("store: order needs a user and at least one item")
	}
	now := m.now().UTC()
	o.ID = uuid.NewString()
	o.Status = api.StatusPending
	o.CreatedAt, o.UpdatedAt = now, now
	o.Items = append([]api.OrderItem(nil), o.Items...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	m.orderSeq = append(m.orderSeq, o.ID)
	return o, nil
}

// List returns orders oldest first.
func (m *Memory) List(_ context.Context) ([]api.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]api.Order, 0, len(m.orderSeq))
	for _, id := range m.orderSeq {
		o := m.orders[id]
		o.Items = append([]api.OrderItem(nil), o.Items...)
		out = append(out, o)
	}
	return out, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, s api.OrderStatus) (api.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return api.Order{}, api.ErrNotFound
	}
	o.Status = s
	o.UpdatedAt = m.now().UTC()
	m.orders[id] = o
	o.Items = append([]api.OrderItem(nil), o.Items...)
	return o, nil
}

var (
	_ api.Users   = (*Memory)(nil)
	_ api.Catalog = (*Memory)(nil)
	_ api.Orders  = (*Memory)(nil)
)
