package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/registrar"
	"maildash/backend/internal/storage/memory"
)

// MockRegistrar 模拟注册商接口
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Check(ctx context.Context, operator string, names []string) ([]registrar.Availability, error) {
	args := m.Called(ctx, operator, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]registrar.Availability), args.Error(1)
}

func (m *MockRegistrar) Register(ctx context.Context, operator, name string, years int) (*registrar.Registration, error) {
	args := m.Called(ctx, operator, name, years)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registrar.Registration), args.Error(1)
}

func (m *MockRegistrar) ListDomains(ctx context.Context, operator string) ([]registrar.RegisteredDomain, error) {
	args := m.Called(ctx, operator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]registrar.RegisteredDomain), args.Error(1)
}

func TestDomainService_Purchase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewDomainService(store, registrar.NewFake("taken.com"), 1, nil, nil)

	d, err := svc.Purchase(ctx, aliceUser, " Fresh-Name.DEV ", 2)
	require.NoError(t, err)
	assert.Equal(t, "fresh-name.dev", d.Name)
	assert.Equal(t, domain.DomainStatusActive, d.Status)
	assert.Equal(t, aliceUser.ID, d.OwnerID)
	require.NotNil(t, d.ExpiresAt)
	assert.Equal(t, d.RegisteredAt.AddDate(2, 0, 0), *d.ExpiresAt)
	assert.NotEmpty(t, d.RegistrarOrder)

	_, err = svc.Purchase(ctx, bobUser, "fresh-name.dev", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Purchase(ctx, aliceUser, "taken.com", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Purchase(ctx, aliceUser, "not a domain", 1)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = svc.Purchase(ctx, aliceUser, "long.com", 11)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestDomainService_PurchasePending(t *testing.T) {
	fake := registrar.NewFake()
	fake.Pending = true
	svc := NewDomainService(memory.NewStore(), fake, 1, nil, nil)

	d, err := svc.Purchase(context.Background(), aliceUser, "slow.io", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainStatusPending, d.Status)
}

func TestDomainService_RegistrarErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind domain.ErrorKind
	}{
		{name: "响应格式错误", err: &registrar.UpstreamFormatError{Command: "check", Reason: "invalid xml"}, kind: domain.KindUpstreamFormat},
		{name: "接口返回错误", err: &registrar.APIError{Command: "check", Errors: []registrar.ErrorDetail{{Number: "2011170", Message: "bad"}}}, kind: domain.KindUpstream},
		{name: "请求超时", err: &url.Error{Op: "Get", URL: "https://registrar", Err: context.DeadlineExceeded}, kind: domain.KindUpstream},
		{name: "网络错误", err: errors.New("connection refused"), kind: domain.KindUpstream},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := new(MockRegistrar)
			reg.On("Check", mock.Anything, aliceUser.ID, []string{"example.com"}).Return(nil, tc.err)

			svc := NewDomainService(memory.NewStore(), reg, 1, nil, nil)
			_, err := svc.Purchase(context.Background(), aliceUser, "example.com", 1)
			require.Error(t, err)
			assert.Equal(t, tc.kind, domain.KindOf(err))
			reg.AssertExpectations(t)
			reg.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDomainService_RegisterFailureNotPersisted(t *testing.T) {
	store := memory.NewStore()
	reg := new(MockRegistrar)
	reg.On("Check", mock.Anything, aliceUser.ID, []string{"example.com"}).
		Return([]registrar.Availability{{Name: "example.com", Available: true}}, nil)
	reg.On("Register", mock.Anything, aliceUser.ID, "example.com", 1).
		Return(nil, &registrar.APIError{Command: "create", Errors: []registrar.ErrorDetail{{Number: "2033409", Message: "not available"}}})

	svc := NewDomainService(store, reg, 1, nil, nil)
	_, err := svc.Purchase(context.Background(), aliceUser, "example.com", 0)
	assert.ErrorIs(t, err, domain.ErrUpstream)

	_, err = store.GetDomainByName(context.Background(), "example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	reg.AssertExpectations(t)
}

func TestDomainService_CheckAvailability(t *testing.T) {
	svc := NewDomainService(memory.NewStore(), registrar.NewFake("taken.com"), 1, nil, nil)
	ctx := context.Background()

	result, err := svc.CheckAvailability(ctx, aliceUser, []string{"TAKEN.com", "free.net"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.False(t, result[0].Available)
	assert.True(t, result[1].Available)

	_, err = svc.CheckAvailability(ctx, aliceUser, nil)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	_, err = svc.CheckAvailability(ctx, aliceUser, []string{"-bad-.com"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestDomainService_Access(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewDomainService(store, registrar.NewFake(), 1, nil, nil)

	mine, err := svc.Purchase(ctx, aliceUser, "alice.dev", 1)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, bobUser, "bob.dev", 1)
	require.NoError(t, err)

	list, err := svc.List(ctx, aliceUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice.dev", list[0].Name)

	list, err = svc.List(ctx, adminUser)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.Get(ctx, bobUser, mine.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, bobUser, mine.ID), domain.ErrForbidden)

	// 删除域名级联删除申请
	workflow, _ := newWorkflow(t, store)
	req, err := workflow.Submit(ctx, SubmitInput{DomainID: mine.ID, Username: "info", Secret: testSecret}, aliceUser)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, aliceUser, mine.ID))
	_, err = store.GetEmailRequest(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Get(ctx, adminUser, mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDomainService_SyncFromRegistrar(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	fake := registrar.NewFake()
	svc := NewDomainService(store, fake, 1, nil, nil)

	existing, err := svc.Purchase(ctx, aliceUser, "kept.com", 1)
	require.NoError(t, err)
	require.NoError(t, store.AddMailbox(ctx, existing.ID, &domain.DomainMailbox{
		ID: "mb-1", Username: "info", FullEmail: "info@kept.com", CreatedAt: time.Now().UTC(),
	}))
	_, err = svc.Purchase(ctx, bobUser, "bobs.com", 1)
	require.NoError(t, err)

	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Now().UTC().AddDate(3, 0, 0)
	fake.Seed(aliceUser.ID, registrar.RegisteredDomain{RegistrarID: "r-1", Name: "Kept.com", ExpiresAt: &future, AutoRenew: true})
	fake.Seed(aliceUser.ID, registrar.RegisteredDomain{RegistrarID: "r-2", Name: "imported.org", ExpiresAt: &future})
	fake.Seed(aliceUser.ID, registrar.RegisteredDomain{RegistrarID: "r-3", Name: "old.net", ExpiresAt: &past})
	fake.Seed(aliceUser.ID, registrar.RegisteredDomain{RegistrarID: "r-4", Name: "bobs.com", ExpiresAt: &future})

	result, err := svc.SyncFromRegistrar(ctx, aliceUser)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)

	kept, err := store.GetDomain(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, kept.AutoRenew)
	assert.Equal(t, "r-1", kept.RegistrarID)
	assert.Len(t, kept.Mailboxes, 1)

	old, err := store.GetDomainByName(ctx, "old.net")
	require.NoError(t, err)
	assert.Equal(t, domain.DomainStatusExpired, old.Status)

	bobs, err := store.GetDomainByName(ctx, "bobs.com")
	require.NoError(t, err)
	assert.Equal(t, bobUser.ID, bobs.OwnerID)
}

func TestDomainService_SyncSingleFlight(t *testing.T) {
	reg := new(MockRegistrar)
	var calls int32
	reg.On("ListDomains", mock.Anything, aliceUser.ID).
		Run(func(args mock.Arguments) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(50 * time.Millisecond)
		}).
		Return([]registrar.RegisteredDomain{}, nil)

	svc := NewDomainService(memory.NewStore(), reg, 1, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SyncFromRegistrar(context.Background(), aliceUser)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDomainService_ExpireOverdue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewDomainService(store, registrar.NewFake(), 1, nil, nil)

	d, err := svc.Purchase(ctx, aliceUser, "short.com", 1)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().AddDate(2, 0, 0) }
	n, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetDomain(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainStatusExpired, got.Status)

	n, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
