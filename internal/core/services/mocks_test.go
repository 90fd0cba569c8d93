package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"walkmate-bot/internal/core/domain"
)

// ============================================================================
// Mock Repositories
// ============================================================================

// MockWebhookRepository mocks WebhookRepository interface
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) SaveLog(ctx context.Context, log *domain.WebhookLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

// MockDedupRepository mocks DedupRepository interface
type MockDedupRepository struct {
	mock.Mock
}

func (m *MockDedupRepository) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupRepository) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, messageID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupRepository) Release(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// memDedupRepo is a DedupRepository backed by a set
type memDedupRepo struct {
	mu       sync.Mutex
	ids      map[string]struct{}
	releases int
}

func newMemDedupRepo() *memDedupRepo {
	return &memDedupRepo{ids: map[string]struct{}{}}
}

func (r *memDedupRepo) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[messageID]
	return ok, nil
}

func (r *memDedupRepo) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[messageID]; ok {
		return false, nil
	}
	r.ids[messageID] = struct{}{}
	return true, nil
}

func (r *memDedupRepo) Release(ctx context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
	delete(r.ids, messageID)
	return nil
}

// MockCatalogRepository mocks CatalogRepository interface
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) FindByKey(ctx context.Context, key string) ([]domain.Product, error) {
	args := m.Called(ctx, key)
	if result := args.Get(0); result != nil {
		return result.([]domain.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalogRepository) FindByCategory(ctx context.Context, category string) (*domain.Product, error) {
	args := m.Called(ctx, category)
	if result := args.Get(0); result != nil {
		return result.(*domain.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGateway mocks MessageGateway interface
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendText(ctx context.Context, to, body string) (*domain.SendResult, error) {
	args := m.Called(ctx, to, body)
	return sendResult(args)
}

func (m *MockGateway) SendImage(ctx context.Context, to, imageRef, caption string) (*domain.SendResult, error) {
	args := m.Called(ctx, to, imageRef, caption)
	return sendResult(args)
}

func (m *MockGateway) SendButtons(ctx context.Context, to, body string, buttons []domain.Button) (*domain.SendResult, error) {
	args := m.Called(ctx, to, body, buttons)
	return sendResult(args)
}

func (m *MockGateway) SendTemplate(ctx context.Context, to string, tmpl domain.Template) (*domain.SendResult, error) {
	args := m.Called(ctx, to, tmpl)
	return sendResult(args)
}

func sendResult(args mock.Arguments) (*domain.SendResult, error) {
	if result := args.Get(0); result != nil {
		return result.(*domain.SendResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// sentMethods lists gateway calls in order, e.g. "SendImage"
func (m *MockGateway) sentMethods() []string {
	var methods []string
	for _, c := range m.Calls {
		methods = append(methods, c.Method)
	}
	return methods
}

var okResult = &domain.SendResult{StatusCode: 200, MessageID: "wamid.OUT"}

// ============================================================================
// In-memory state store
// ============================================================================

// memStateRepo is a StateRepository backed by a map, with call counters
type memStateRepo struct {
	mu      sync.Mutex
	records map[string]domain.StateRecord
	sets    int
	clears  int
	getErr  error
	setErr  error
	corrupt map[string]bool
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{
		records: map[string]domain.StateRecord{},
		corrupt: map[string]bool{},
	}
}

func (r *memStateRepo) Get(ctx context.Context, userID string) (*domain.StateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.corrupt[userID] {
		return nil, fmt.Errorf("get user state: %w: unknown value %q", domain.ErrCorruptState, "garbage")
	}
	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memStateRepo) Set(ctx context.Context, userID string, state domain.ConversationState, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	r.sets++
	r.records[userID] = domain.StateRecord{UserID: userID, State: state, UpdatedAt: at}
	return nil
}

func (r *memStateRepo) Clear(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	delete(r.records, userID)
	delete(r.corrupt, userID)
	return nil
}

func (r *memStateRepo) stored(userID string) (domain.StateRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	return rec, ok
}

// fixedClock returns a controllable now function
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }
