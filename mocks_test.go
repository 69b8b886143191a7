package authflow_test

import (
	"context"
	"strings"
	"sync"

	authflow "github.com/goliatone/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockRecordStore implements authflow.RecordStore
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Read(ctx context.Context, id uuid.UUID) (*authflow.UserRecord, error) {
	args := m.Called(ctx, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*authflow.UserRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordStore) Write(ctx context.Context, id uuid.UUID, patch authflow.RecordPatch) (*authflow.UserRecord, error) {
	args := m.Called(ctx, id, patch)
	if rec := args.Get(0); rec != nil {
		return rec.(*authflow.UserRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordStore) Create(ctx context.Context, record *authflow.UserRecord, criteria ...repository.InsertCriteria) (*authflow.UserRecord, error) {
	args := m.Called(ctx, record)
	if rec := args.Get(0); rec != nil {
		return rec.(*authflow.UserRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordStore) ScanByEmail(ctx context.Context, email string) (*authflow.UserRecord, error) {
	args := m.Called(ctx, email)
	if rec := args.Get(0); rec != nil {
		return rec.(*authflow.UserRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProfileCache implements authflow.ProfileCache
type MockProfileCache struct {
	mock.Mock
}

var _ authflow.ProfileCache = (*MockProfileCache)(nil)

func (m *MockProfileCache) Get(ctx context.Context, userID string) (*authflow.CachedProfile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*authflow.CachedProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfileCache) Put(ctx context.Context, userID string, profile *authflow.CachedProfile) error {
	args := m.Called(ctx, userID, profile)
	return args.Error(0)
}

func (m *MockProfileCache) Clear(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// fakeProvider is a scripted identity provider for guard runner tests:
// it delivers the current session on subscribe and lets tests push
// further sessions to every observer.
type fakeProvider struct {
	session   authflow.Session
	observers []authflow.AuthStateFunc
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (authflow.Session, error) {
	return p.session, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (authflow.Session, error) {
	return p.session, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.push(authflow.Anonymous)
	return nil
}

func (p *fakeProvider) CurrentSession(ctx context.Context) authflow.Session {
	return p.session
}

func (p *fakeProvider) OnAuthStateChanged(fn authflow.AuthStateFunc) authflow.Unsubscribe {
	p.observers = append(p.observers, fn)
	fn(p.session)
	return func() {}
}

func (p *fakeProvider) SendPasswordResetEmail(ctx context.Context, email string, opts authflow.ResetOptions) error {
	return nil
}

func (p *fakeProvider) VerifyResetCode(ctx context.Context, code string) (string, error) {
	return "", nil
}

func (p *fakeProvider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	return nil
}

func (p *fakeProvider) push(session authflow.Session) {
	p.session = session
	for _, fn := range p.observers {
		fn(session)
	}
}

// memStore is a stateful in-memory RecordStore for tests that exercise
// read-modify-write sequences, where scripted expectations get unwieldy.
type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*authflow.UserRecord
	failAll error
}

var _ authflow.RecordStore = (*memStore)(nil)

func newMemStore(records ...*authflow.UserRecord) *memStore {
	s := &memStore{records: map[uuid.UUID]*authflow.UserRecord{}}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *memStore) Read(ctx context.Context, id uuid.UUID) (*authflow.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll != nil {
		return nil, s.failAll
	}

	record, ok := s.records[id]
	if !ok {
		return nil, goerrors.New("record not found", goerrors.CategoryNotFound)
	}
	clone := *record
	return &clone, nil
}

func (s *memStore) Write(ctx context.Context, id uuid.UUID, patch authflow.RecordPatch) (*authflow.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll != nil {
		return nil, s.failAll
	}

	record, ok := s.records[id]
	if !ok {
		return nil, goerrors.New("record not found", goerrors.CategoryNotFound)
	}

	if patch.Username != nil {
		record.Username = *patch.Username
	}
	if patch.SecretKey != nil {
		record.SecretKey = *patch.SecretKey
	}
	if patch.Verified != nil {
		record.Verified = *patch.Verified
	}
	if patch.VerifiedAt != nil {
		record.VerifiedAt = patch.VerifiedAt
	}
	if patch.ClearChallenge {
		record.OTP = nil
		record.OTPCreatedAt = nil
	} else {
		if patch.OTP != nil {
			record.OTP = patch.OTP
		}
		if patch.OTPCreatedAt != nil {
			record.OTPCreatedAt = patch.OTPCreatedAt
		}
	}

	clone := *record
	return &clone, nil
}

func (s *memStore) Create(ctx context.Context, record *authflow.UserRecord, criteria ...repository.InsertCriteria) (*authflow.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll != nil {
		return nil, s.failAll
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.records[record.ID] = record
	clone := *record
	return &clone, nil
}

func (s *memStore) ScanByEmail(ctx context.Context, email string) (*authflow.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll != nil {
		return nil, s.failAll
	}

	email = strings.ToLower(strings.TrimSpace(email))
	for _, record := range s.records {
		if strings.ToLower(record.Email) == email {
			clone := *record
			return &clone, nil
		}
	}
	return nil, goerrors.New("record not found", goerrors.CategoryNotFound)
}

func (s *memStore) get(id uuid.UUID) *authflow.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}
