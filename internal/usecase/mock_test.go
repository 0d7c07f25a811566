//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

// ---- Shared in-memory store ----

// memStore backs every mock repository so MockTxManager can roll all of them back together.
type memStore struct {
	mu       sync.Mutex
	payments map[string]*model.PaymentRecord
	grants   map[string]*model.EntitlementGrant // owner|comic
	subs     map[string]*model.SubscriptionState
	users    map[string]*model.User
}

func newMemStore() *memStore {
	return &memStore{
		payments: map[string]*model.PaymentRecord{},
		grants:   map[string]*model.EntitlementGrant{},
		subs:     map[string]*model.SubscriptionState{},
		users:    map[string]*model.User{},
	}
}

func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newMemStore()
	for k, v := range s.payments {
		c.payments[k] = copyRecord(v)
	}
	for k, v := range s.grants {
		g := *v
		c.grants[k] = &g
	}
	for k, v := range s.subs {
		st := *v
		c.subs[k] = &st
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	return c
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments, s.grants, s.subs, s.users = snap.payments, snap.grants, snap.subs, snap.users
}

func copyRecord(p *model.PaymentRecord) *model.PaymentRecord {
	c := *p
	return &c
}

func grantKey(owner, comic string) string { return owner + "|" + comic }

// ---- Transaction manager ----

type mockTx struct{}

// MockTxManager serializes transactions and restores the store snapshot when fn fails.
type MockTxManager struct {
	txMu  sync.Mutex
	store *memStore

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	mu        sync.Mutex
	Commits   int
	Rollbacks int
}

func NewMockTxManager(store *memStore) *MockTxManager {
	return &MockTxManager{store: store}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.store.snapshot()
	err := fn(ctx, mockTx{})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.store.restore(snap)
		m.Rollbacks++
		return err
	}
	m.Commits++
	return nil
}

// ---- Payment repository ----

type MockPaymentRepo struct {
	s *memStore

	SaveFunc                    func(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error
	ApplyRetryFunc              func(ctx context.Context, tx repository.Tx, id string, r repository.PaymentRetried) (bool, error)
	MarkRefundedIfSucceededFunc func(ctx context.Context, tx repository.Tx, id string, r repository.PaymentRefunded) (bool, error)
}

func NewMockPaymentRepo(s *memStore) *MockPaymentRepo { return &MockPaymentRepo{s: s} }

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	return m.save(p)
}

func (m *MockPaymentRepo) save(p *model.PaymentRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.payments[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.s.payments[p.ID] = copyRecord(p)
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(p), nil
}

func (m *MockPaymentRepo) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return m.FindByID(ctx, tx, id)
}

func (m *MockPaymentRepo) filter(keep func(p *model.PaymentRecord) bool) []*model.PaymentRecord {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.PaymentRecord
	for _, p := range m.s.payments {
		if keep(p) {
			out = append(out, copyRecord(p))
		}
	}
	return out
}

func (m *MockPaymentRepo) ListByIntent(ctx context.Context, tx repository.Tx, intentID string) ([]*model.PaymentRecord, error) {
	out := m.filter(func(p *model.PaymentRecord) bool { return p.GatewayIntentID == intentID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockPaymentRepo) LockByIntent(ctx context.Context, tx repository.Tx, intentID string) ([]*model.PaymentRecord, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return m.ListByIntent(ctx, tx, intentID)
}

func (m *MockPaymentRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, f model.PaymentFilter) ([]*model.PaymentRecord, error) {
	out := m.filter(func(p *model.PaymentRecord) bool {
		switch {
		case p.OwnerID != ownerID:
			return false
		case f.Status != nil && p.Status != *f.Status:
			return false
		case f.Kind != nil && p.Kind() != *f.Kind:
			return false
		case f.From != nil && p.CreatedAt.Before(*f.From):
			return false
		case f.To != nil && !p.CreatedAt.Before(*f.To):
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	out := m.filter(func(p *model.PaymentRecord) bool {
		touched := p.CreatedAt
		if p.LastRetryAt != nil {
			touched = *p.LastRetryAt
		}
		return p.Status == model.PaymentStatusPending && p.GatewayIntentID != "" && touched.Before(olderThan)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) FindByGatewayRefundID(ctx context.Context, tx repository.Tx, refundID string) (*model.PaymentRecord, error) {
	out := m.filter(func(p *model.PaymentRecord) bool { return refundID != "" && p.GatewayRefundID == refundID })
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out[0], nil
}

// update applies fn to the stored record under the store lock; fn reports whether the CAS matched.
func (m *MockPaymentRepo) update(id string, fn func(p *model.PaymentRecord) bool) bool {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.payments[id]
	if !ok {
		return false
	}
	c := copyRecord(p)
	if !fn(c) {
		return false
	}
	c.UpdatedAt = time.Now()
	m.s.payments[id] = c
	return true
}

func (m *MockPaymentRepo) SetIntent(ctx context.Context, tx repository.Tx, id, intentID string) error {
	ok := m.update(id, func(p *model.PaymentRecord) bool {
		if p.Status != model.PaymentStatusPending || p.GatewayIntentID != "" {
			return false
		}
		p.GatewayIntentID = intentID
		return true
	})
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MockPaymentRepo) MarkSucceededIfOpen(ctx context.Context, tx repository.Tx, id string, s repository.PaymentSucceeded) (bool, error) {
	return m.update(id, func(p *model.PaymentRecord) bool {
		if p.GatewayIntentID != s.IntentID || (p.Status != model.PaymentStatusPending && p.Status != model.PaymentStatusFailed) {
			return false
		}
		paid := s.PaidAt
		p.Status, p.PaidAt, p.PaymentMethod, p.TaxAmount = model.PaymentStatusSucceeded, &paid, s.PaymentMethod, s.TaxAmount
		return true
	}), nil
}

func (m *MockPaymentRepo) MarkFailedIfPending(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return m.update(id, func(p *model.PaymentRecord) bool {
		if p.Status != model.PaymentStatusPending {
			return false
		}
		p.Status = model.PaymentStatusFailed
		return true
	}), nil
}

func (m *MockPaymentRepo) MarkRefundedIfSucceeded(ctx context.Context, tx repository.Tx, id string, r repository.PaymentRefunded) (bool, error) {
	if m.MarkRefundedIfSucceededFunc != nil {
		return m.MarkRefundedIfSucceededFunc(ctx, tx, id, r)
	}
	return m.update(id, func(p *model.PaymentRecord) bool {
		if p.Status != model.PaymentStatusSucceeded {
			return false
		}
		at, amount := r.RefundedAt, r.RefundAmount
		p.Status, p.RefundedAt, p.RefundAmount, p.GatewayRefundID, p.RefundReason = model.PaymentStatusRefunded, &at, &amount, r.GatewayRefundID, r.Reason
		return true
	}), nil
}

func (m *MockPaymentRepo) ApplyRetry(ctx context.Context, tx repository.Tx, id string, r repository.PaymentRetried) (bool, error) {
	if m.ApplyRetryFunc != nil {
		return m.ApplyRetryFunc(ctx, tx, id, r)
	}
	return m.update(id, func(p *model.PaymentRecord) bool {
		if p.GatewayIntentID != r.OldIntentID || !p.IsRetryable() {
			return false
		}
		at := r.RetriedAt
		p.GatewayIntentID, p.RetryCount, p.LastRetryAt, p.Status = r.NewIntentID, p.RetryCount+1, &at, model.PaymentStatusPending
		return true
	}), nil
}

func (m *MockPaymentRepo) SumSucceededSince(ctx context.Context, tx repository.Tx, since time.Time) (map[string]int64, error) {
	out := map[string]int64{}
	for _, p := range m.filter(func(p *model.PaymentRecord) bool {
		return p.Status == model.PaymentStatusSucceeded && p.PaidAt != nil && !p.PaidAt.Before(since)
	}) {
		out[p.Currency] += p.Amount
	}
	return out, nil
}

// ---- Entitlement repository ----

type MockEntitlementRepo struct {
	s *memStore

	UpsertFunc func(ctx context.Context, tx repository.Tx, g *model.EntitlementGrant) error
	RevokeFunc func(ctx context.Context, tx repository.Tx, ownerID, comicID, paymentID string) (bool, error)
}

func NewMockEntitlementRepo(s *memStore) *MockEntitlementRepo { return &MockEntitlementRepo{s: s} }

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func (m *MockEntitlementRepo) Upsert(ctx context.Context, tx repository.Tx, g *model.EntitlementGrant) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, g)
	}
	return m.upsert(g)
}

func (m *MockEntitlementRepo) upsert(g *model.EntitlementGrant) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k := grantKey(g.OwnerID, g.ComicID)
	if cur, ok := m.s.grants[k]; ok && cur.AccessType == model.AccessTypePurchased && g.AccessType != model.AccessTypePurchased {
		return nil
	}
	c := *g
	m.s.grants[k] = &c
	return nil
}

func (m *MockEntitlementRepo) Find(ctx context.Context, tx repository.Tx, ownerID, comicID string) (*model.EntitlementGrant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	g, ok := m.s.grants[grantKey(ownerID, comicID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *g
	return &c, nil
}

func (m *MockEntitlementRepo) Revoke(ctx context.Context, tx repository.Tx, ownerID, comicID, paymentID string) (bool, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tx, ownerID, comicID, paymentID)
	}
	return m.revoke(ownerID, comicID, paymentID), nil
}

func (m *MockEntitlementRepo) revoke(ownerID, comicID, paymentID string) bool {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k := grantKey(ownerID, comicID)
	g, ok := m.s.grants[k]
	if !ok || g.PaymentID == nil || *g.PaymentID != paymentID {
		return false
	}
	delete(m.s.grants, k)
	return true
}

func (m *MockEntitlementRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string) ([]*model.EntitlementGrant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.EntitlementGrant
	for _, g := range m.s.grants {
		if g.OwnerID == ownerID {
			c := *g
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComicID < out[j].ComicID })
	return out, nil
}

// ---- Subscription repository ----

type MockSubscriptionRepo struct {
	s *memStore
}

func NewMockSubscriptionRepo(s *memStore) *MockSubscriptionRepo { return &MockSubscriptionRepo{s: s} }

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, st *model.SubscriptionState) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *st
	m.s.subs[st.OwnerID] = &c
	return nil
}

func (m *MockSubscriptionRepo) FindByOwner(ctx context.Context, tx repository.Tx, ownerID string) (*model.SubscriptionState, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st, ok := m.s.subs[ownerID]
	if !ok {
		return model.NoSubscription(ownerID), nil
	}
	c := *st
	return &c, nil
}

func (m *MockSubscriptionRepo) CancelIfActivatedBy(ctx context.Context, tx repository.Tx, ownerID, paymentID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st, ok := m.s.subs[ownerID]
	if !ok || st.Status != model.SubscriptionStatusActive || !st.ActivatedBy(paymentID) {
		return false, nil
	}
	c := *st
	c.Status = model.SubscriptionStatusCanceled
	m.s.subs[ownerID] = &c
	return true, nil
}

func (m *MockSubscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for k, st := range m.s.subs {
		if st.Status == model.SubscriptionStatusActive && st.ExpiresAt != nil && !st.ExpiresAt.After(now) {
			c := *st
			c.Status = model.SubscriptionStatusExpired
			m.s.subs[k] = &c
			n++
		}
	}
	return n, nil
}

func (m *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, st := range m.s.subs {
		out[st.Status]++
	}
	return out, nil
}

// ---- User repository ----

type MockUserRepo struct {
	s *memStore

	SaveFunc func(ctx context.Context, tx repository.Tx, u *model.User) error
}

func NewMockUserRepo(s *memStore) *MockUserRepo { return &MockUserRepo{s: s} }

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *u
	m.s.users[u.ID] = &c
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

// ---- Catalog ----

type MockCatalog struct {
	mu     sync.Mutex
	comics map[string]*model.Comic
}

func NewMockCatalog(comics ...*model.Comic) *MockCatalog {
	c := &MockCatalog{comics: map[string]*model.Comic{}}
	for _, cm := range comics {
		c.comics[cm.ID] = cm
	}
	return c
}

var _ adapter.Catalog = (*MockCatalog)(nil)

func (c *MockCatalog) GetComic(ctx context.Context, comicID string) (*model.Comic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cm, ok := c.comics[comicID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *cm
	return &cp, nil
}

func (c *MockCatalog) GetComicPrice(ctx context.Context, comicID string) (int64, error) {
	cm, err := c.GetComic(ctx, comicID)
	if err != nil {
		return 0, err
	}
	return cm.Price, nil
}

func (c *MockCatalog) IsFree(ctx context.Context, comicID string) (bool, error) {
	cm, err := c.GetComic(ctx, comicID)
	if err != nil {
		return false, err
	}
	return cm.IsFree, nil
}

func (c *MockCatalog) Exists(ctx context.Context, comicID string) (bool, error) {
	_, err := c.GetComic(ctx, comicID)
	return err == nil, nil
}

// ---- Gateway ----

// MockGateway records calls and keeps intents in memory. New intents start as processing.
type MockGateway struct {
	mu       sync.Mutex
	seq      int
	requests map[string]adapter.IntentRequest
	statuses map[string]adapter.IntentStatus
	byKey    map[string]string
	refunds  map[string]adapter.RefundResult

	CreateIntentCalls int
	CancelIntentCalls int
	CreateRefundCalls int
	LastIntentRequest adapter.IntentRequest

	CreateIntentFunc   func(ctx context.Context, req adapter.IntentRequest) (adapter.Intent, error)
	RetrieveIntentFunc func(ctx context.Context, intentID string) (adapter.IntentInfo, error)
	CancelIntentFunc   func(ctx context.Context, intentID string) (adapter.IntentInfo, error)
	CreateRefundFunc   func(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error)
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		requests: map[string]adapter.IntentRequest{},
		statuses: map[string]adapter.IntentStatus{},
		byKey:    map[string]string{},
		refunds:  map[string]adapter.RefundResult{},
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.Intent, error) {
	g.mu.Lock()
	g.CreateIntentCalls++
	g.LastIntentRequest = req
	g.mu.Unlock()
	if g.CreateIntentFunc != nil {
		return g.CreateIntentFunc(ctx, req)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[req.IdempotencyKey]; ok {
		return adapter.Intent{ID: id, ClientSecret: id + "_secret"}, nil
	}
	g.seq++
	id := fmt.Sprintf("pi_mock_%d", g.seq)
	g.requests[id] = req
	g.statuses[id] = adapter.IntentStatusProcessing
	g.byKey[req.IdempotencyKey] = id
	return adapter.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *MockGateway) RetrieveIntent(ctx context.Context, intentID string) (adapter.IntentInfo, error) {
	if g.RetrieveIntentFunc != nil {
		return g.RetrieveIntentFunc(ctx, intentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[intentID]
	if !ok {
		return adapter.IntentInfo{}, domain.ErrPaymentNotFound
	}
	req := g.requests[intentID]
	return adapter.IntentInfo{ID: intentID, Status: st, PaymentMethod: "visa **** 4242", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *MockGateway) CancelIntent(ctx context.Context, intentID string) (adapter.IntentInfo, error) {
	g.mu.Lock()
	g.CancelIntentCalls++
	g.mu.Unlock()
	if g.CancelIntentFunc != nil {
		return g.CancelIntentFunc(ctx, intentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[intentID]
	if !ok {
		return adapter.IntentInfo{}, domain.ErrPaymentNotFound
	}
	if st != adapter.IntentStatusSucceeded && st != adapter.IntentStatusProcessing {
		st = adapter.IntentStatusCanceled
		g.statuses[intentID] = st
	}
	req := g.requests[intentID]
	return adapter.IntentInfo{ID: intentID, Status: st, Amount: req.Amount, Currency: req.Currency}, nil
}

// SetStatus moves an intent, e.g. to simulate the customer paying.
func (g *MockGateway) SetStatus(intentID string, st adapter.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[intentID] = st
}

func (g *MockGateway) Request(intentID string) adapter.IntentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[intentID]
}

func (g *MockGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	g.mu.Lock()
	g.CreateRefundCalls++
	g.mu.Unlock()
	if g.CreateRefundFunc != nil {
		return g.CreateRefundFunc(ctx, req)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[req.IdempotencyKey]; ok {
		return g.refunds[id], nil
	}
	g.seq++
	res := adapter.RefundResult{
		ID:        fmt.Sprintf("re_mock_%d", g.seq),
		IntentID:  req.IntentID,
		Status:    "succeeded",
		Amount:    req.Amount,
		Metadata:  req.Metadata,
		CreatedAt: time.Now(),
	}
	g.refunds[res.ID] = res
	g.byKey[req.IdempotencyKey] = res.ID
	return res, nil
}

// AddRefund registers a refund made outside the service, e.g. from the gateway dashboard.
func (g *MockGateway) AddRefund(r adapter.RefundResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds[r.ID] = r
}

func (g *MockGateway) RetrieveRefund(ctx context.Context, refundID string) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.refunds[refundID]
	if !ok {
		return adapter.RefundResult{}, domain.ErrPaymentNotFound
	}
	return r, nil
}

func (g *MockGateway) ListRefunds(ctx context.Context, since time.Time, limit int) ([]adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []adapter.RefundResult
	for _, r := range g.refunds {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Event publisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []adapter.EntitlementEvent

	PublishFunc func(ctx context.Context, events ...adapter.EntitlementEvent) error
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (p *MockPublisher) Publish(ctx context.Context, events ...adapter.EntitlementEvent) error {
	if p.PublishFunc != nil {
		return p.PublishFunc(ctx, events...)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, events...)
	return nil
}

func (p *MockPublisher) Close() error { return nil }

func (p *MockPublisher) Count(t adapter.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// ---- Clock ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Harness ----

const (
	testOwner = "owner-1"
	otherUser = "owner-2"
)

// harness wires every use case to one in-memory store, the way cmd/app wires them to Postgres.
type harness struct {
	store    *memStore
	tm       *MockTxManager
	payments *MockPaymentRepo
	ents     *MockEntitlementRepo
	subs     *MockSubscriptionRepo
	users    *MockUserRepo
	catalog  *MockCatalog
	gw       *MockGateway
	pub      *MockPublisher
	plans    *usecase.PlanUseCase
	clock    *fakeClock
	opts     usecase.Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	monthly, err := model.NewSubscriptionPlan("monthly", "Monthly", 999, "USD", 30*24*time.Hour, []string{"Unlimited reading"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	plans, err := usecase.NewPlanUseCase(monthly)
	if err != nil {
		t.Fatalf("plans: %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		store:    store,
		tm:       NewMockTxManager(store),
		payments: NewMockPaymentRepo(store),
		ents:     NewMockEntitlementRepo(store),
		subs:     NewMockSubscriptionRepo(store),
		users:    NewMockUserRepo(store),
		catalog: NewMockCatalog(
			&model.Comic{ID: "c1", Title: "Issue 1", Price: 1000, Currency: "USD"},
			&model.Comic{ID: "c2", Title: "Issue 2", Price: 1000, Currency: "USD"},
			&model.Comic{ID: "c3", Title: "Issue 3", Price: 1000, Currency: "USD"},
			&model.Comic{ID: "c4", Title: "Odd price", Price: 999, Currency: "USD"},
			&model.Comic{ID: "free1", Title: "Preview", Price: 0, Currency: "USD", IsFree: true},
			&model.Comic{ID: "eur1", Title: "Euro edition", Price: 800, Currency: "EUR"},
			&model.Comic{ID: "cheap1", Title: "Penny issue 1", Price: 1, Currency: "USD"},
			&model.Comic{ID: "cheap2", Title: "Penny issue 2", Price: 1, Currency: "USD"},
		),
		gw:    NewMockGateway(),
		pub:   &MockPublisher{},
		plans: plans,
		clock: clock,
	}
	h.opts = usecase.Options{RetryLimit: 3, GatewayTimeout: time.Second, Now: clock.Now}
	return h
}

func (h *harness) intents() usecase.IntentUseCase {
	return usecase.NewIntentUseCase(h.payments, h.ents, h.catalog, h.gw, h.plans, h.tm, h.opts, newTestLogger())
}

func (h *harness) confirmer() usecase.ConfirmUseCase {
	return usecase.NewConfirmUseCase(h.payments, h.ents, h.subs, h.plans, h.gw, h.pub, h.tm, h.opts, newTestLogger())
}

func (h *harness) retrier() usecase.RetryUseCase {
	return usecase.NewRetryUseCase(h.payments, h.gw, h.tm, h.opts, newTestLogger())
}

func (h *harness) refunder() usecase.RefundUseCase {
	return usecase.NewRefundUseCase(h.payments, h.ents, h.subs, h.gw, h.pub, h.tm, h.opts, newTestLogger())
}

func (h *harness) invoices() usecase.InvoiceUseCase {
	return usecase.NewInvoiceUseCase(h.payments, h.users, h.plans, newTestLogger())
}

func (h *harness) access() usecase.AccessUseCase {
	return usecase.NewAccessUseCase(h.payments, h.ents, h.subs, h.catalog, h.pub, h.opts, newTestLogger())
}

// buy creates a single intent for comicID, marks it paid at the gateway and confirms it.
func (h *harness) buy(t *testing.T, owner, comicID string) *model.PaymentRecord {
	t.Helper()
	ctx := context.Background()
	res, err := h.intents().CreateSingleIntent(ctx, owner, comicID, "")
	if err != nil {
		t.Fatalf("CreateSingleIntent(%s): %v", comicID, err)
	}
	h.gw.SetStatus(res.IntentID, adapter.IntentStatusSucceeded)
	if _, err := h.confirmer().Confirm(ctx, res.IntentID); err != nil {
		t.Fatalf("Confirm(%s): %v", res.IntentID, err)
	}
	rec, _ := h.payments.FindByID(ctx, nil, res.Payment.ID)
	return rec
}

func (h *harness) record(t *testing.T, id string) *model.PaymentRecord {
	t.Helper()
	rec, err := h.payments.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return rec
}
