package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"

	"maildash/backend/internal/config"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/storage"
)

// StoreTestSuite 在内存 SQLite 上验证 GORM 存储
type StoreTestSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	// 单连接保证所有操作看到同一个内存数据库
	store, err := NewStoreWithDialector(sqlite.Open("file::memory:"), config.DatabaseConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(s.T(), err)
	s.store = store
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	_ = s.store.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) seedDomain(id, name string) *domain.Domain {
	d := &domain.Domain{
		ID:      id,
		Name:    name,
		Status:  domain.DomainStatusActive,
		OwnerID: "owner-1",
	}
	require.NoError(s.T(), s.store.CreateDomain(s.ctx, d))
	return d
}

func newRequest(id, domainID, username string) *domain.EmailRequest {
	return &domain.EmailRequest{
		ID:               id,
		DomainID:         domainID,
		DomainName:       "example.com",
		Username:         username,
		FullEmailAddress: username + "@example.com",
		Secret:           "Abcd1234!",
		RequestedBy:      "user-1",
		Status:           domain.RequestStatusPending,
	}
}

func (s *StoreTestSuite) TestUser_CreateAndLookup() {
	user := &domain.User{
		ID:       "user-1",
		Username: "Alice",
		Email:    "Alice@Example.com",
		Role:     domain.RoleUser,
		IsActive: true,
	}
	require.NoError(s.T(), s.store.CreateUser(s.ctx, user))

	got, err := s.store.GetUserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "user-1", got.ID)

	got, err = s.store.GetUserByEmail(s.ctx, "alice@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Alice", got.Username)

	dup := &domain.User{ID: "user-2", Username: "ALICE", Email: "other@example.com", Role: domain.RoleUser}
	err = s.store.CreateUser(s.ctx, dup)
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	_, err = s.store.GetUserByID(s.ctx, "missing")
	assert.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *StoreTestSuite) TestUser_UsernameUniqueIgnoresCaseInSchema() {
	require.NoError(s.T(), s.store.CreateUser(s.ctx, &domain.User{
		ID: "user-1", Username: "Alice", Email: "alice@example.com", Role: domain.RoleUser,
	}))

	var stored domain.User
	require.NoError(s.T(), s.store.DB().First(&stored, "id = ?", "user-1").Error)
	assert.Equal(s.T(), "Alice", stored.Username)
	assert.Equal(s.T(), "alice", stored.UsernameKey)

	// 绕过应用层预检查，直接由唯一索引拒绝
	err := s.store.DB().Create(&domain.User{
		ID: "user-2", Username: "ALICE", UsernameKey: "alice", Email: "second@example.com", Role: domain.RoleUser,
	}).Error
	assert.Error(s.T(), err)
	assert.True(s.T(), errors.Is(translate(err, userNotFound, "user already exists"), domain.ErrConflict))
}

func (s *StoreTestSuite) TestUser_UpdateAndList() {
	for i := 0; i < 3; i++ {
		require.NoError(s.T(), s.store.CreateUser(s.ctx, &domain.User{
			ID:       fmt.Sprintf("user-%d", i),
			Username: fmt.Sprintf("user%d", i),
			Email:    fmt.Sprintf("user%d@example.com", i),
			Role:     domain.RoleUser,
			IsActive: true,
		}))
	}

	user, err := s.store.GetUserByID(s.ctx, "user-1")
	require.NoError(s.T(), err)
	user.Role = domain.RoleAdmin
	require.NoError(s.T(), s.store.UpdateUser(s.ctx, user))

	role := domain.RoleAdmin
	users, total, err := s.store.ListUsers(s.ctx, domain.UserFilter{Role: &role})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, total)
	assert.Equal(s.T(), "user-1", users[0].ID)

	users, total, err = s.store.ListUsers(s.ctx, domain.UserFilter{Page: 2, PageSize: 2})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, total)
	assert.Len(s.T(), users, 1)

	user.Email = "user0@example.com"
	err = s.store.UpdateUser(s.ctx, user)
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	require.NoError(s.T(), s.store.UpdateLastLogin(s.ctx, "user-2", time.Now()))
	require.NoError(s.T(), s.store.DeleteUser(s.ctx, "user-2"))
	assert.True(s.T(), errors.Is(s.store.DeleteUser(s.ctx, "user-2"), domain.ErrNotFound))
}

func (s *StoreTestSuite) TestEmailRequest_Uniqueness() {
	s.seedDomain("d1", "example.com")
	require.NoError(s.T(), s.store.CreateEmailRequest(s.ctx, newRequest("r1", "d1", "sales")))

	err := s.store.CreateEmailRequest(s.ctx, newRequest("r2", "d1", "sales"))
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	require.NoError(s.T(), s.store.AddMailbox(s.ctx, "d1", &domain.DomainMailbox{
		ID: "m1", Username: "info", FullEmail: "info@example.com", CreatedAt: time.Now(),
	}))
	err = s.store.CreateEmailRequest(s.ctx, newRequest("r3", "d1", "info"))
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	err = s.store.AddMailbox(s.ctx, "d1", &domain.DomainMailbox{ID: "m2", Username: "info", FullEmail: "info@example.com"})
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	err = s.store.AddMailbox(s.ctx, "missing", &domain.DomainMailbox{ID: "m3", Username: "x"})
	assert.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *StoreTestSuite) TestEmailRequest_ConcurrentCreate() {
	s.seedDomain("d1", "example.com")

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.CreateEmailRequest(s.ctx, newRequest(fmt.Sprintf("r%d", i), "d1", "sales"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(s.T(), 1, successes)
	assert.Equal(s.T(), n-1, conflicts)
}

func (s *StoreTestSuite) TestEmailRequest_ConditionalUpdate() {
	s.seedDomain("d1", "example.com")
	require.NoError(s.T(), s.store.CreateEmailRequest(s.ctx, newRequest("r1", "d1", "sales")))

	req, err := s.store.GetEmailRequest(s.ctx, "r1")
	require.NoError(s.T(), err)
	now := time.Now().UTC()
	req.Status = domain.RequestStatusCreated
	req.ProcessedBy = "admin-1"
	req.ProcessedAt = &now
	req.OutboundSettings = &domain.TransportSettings{Server: "smtp.example.com", Port: 587}
	require.NoError(s.T(), s.store.UpdateEmailRequest(s.ctx, req, domain.RequestStatusPending))

	req.Status = domain.RequestStatusRejected
	err = s.store.UpdateEmailRequest(s.ctx, req, domain.RequestStatusPending)
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	got, err := s.store.GetEmailRequest(s.ctx, "r1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.RequestStatusCreated, got.Status)
	require.NotNil(s.T(), got.OutboundSettings)
	assert.Equal(s.T(), 587, got.OutboundSettings.Port)
	assert.Nil(s.T(), got.InboundSettings)

	missing := newRequest("nope", "d1", "x")
	err = s.store.UpdateEmailRequest(s.ctx, missing, domain.RequestStatusPending)
	assert.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *StoreTestSuite) TestAtomic_Rollback() {
	s.seedDomain("d1", "example.com")
	require.NoError(s.T(), s.store.CreateEmailRequest(s.ctx, newRequest("r1", "d1", "sales")))

	boom := errors.New("boom")
	err := s.store.Atomic(s.ctx, func(tx storage.Tx) error {
		req, err := tx.GetEmailRequest(s.ctx, "r1")
		if err != nil {
			return err
		}
		req.Status = domain.RequestStatusCreated
		if err := tx.UpdateEmailRequest(s.ctx, req, domain.RequestStatusPending); err != nil {
			return err
		}
		if err := tx.AddMailbox(s.ctx, "d1", &domain.DomainMailbox{ID: "m1", Username: "sales", FullEmail: "sales@example.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(s.T(), err, boom)

	req, err := s.store.GetEmailRequest(s.ctx, "r1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.RequestStatusPending, req.Status)

	d, err := s.store.GetDomain(s.ctx, "d1")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), d.Mailboxes)
}

func (s *StoreTestSuite) TestDomain_CascadeAndExpire() {
	past := time.Now().UTC().Add(-time.Hour)
	s.seedDomain("d1", "Example.com")
	require.NoError(s.T(), s.store.CreateDomain(s.ctx, &domain.Domain{
		ID: "d2", Name: "old.org", Status: domain.DomainStatusActive, OwnerID: "owner-2", ExpiresAt: &past,
	}))
	require.NoError(s.T(), s.store.CreateEmailRequest(s.ctx, newRequest("r1", "d1", "sales")))

	err := s.store.CreateDomain(s.ctx, &domain.Domain{ID: "d3", Name: "example.com", OwnerID: "owner-1"})
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	owned, err := s.store.ListDomains(s.ctx, domain.DomainFilter{OwnerID: "owner-1"})
	require.NoError(s.T(), err)
	require.Len(s.T(), owned, 1)
	assert.Equal(s.T(), "example.com", owned[0].Name)

	n, err := s.store.ExpireDomains(s.ctx, time.Now().UTC())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, n)

	d, err := s.store.GetDomainByName(s.ctx, "old.org")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.DomainStatusExpired, d.Status)

	require.NoError(s.T(), s.store.DeleteDomain(s.ctx, "d1"))
	_, err = s.store.GetEmailRequest(s.ctx, "r1")
	assert.True(s.T(), errors.Is(err, domain.ErrNotFound))
	assert.True(s.T(), errors.Is(s.store.DeleteDomain(s.ctx, "d1"), domain.ErrNotFound))
}

func (s *StoreTestSuite) TestSMSLog_Idempotent() {
	base := time.Now().UTC()
	require.NoError(s.T(), s.store.SaveSMSLog(s.ctx, &domain.SMSLog{
		ID: "s1", SourceID: "<a@x>", Sender: "+15550001", Content: "code 1234", RawText: "raw", ReceivedAt: base,
	}))
	require.NoError(s.T(), s.store.SaveSMSLog(s.ctx, &domain.SMSLog{
		ID: "s2", SourceID: "<b@x>", Sender: "BANK", Content: "balance", RawText: "raw", ReceivedAt: base.Add(time.Minute),
	}))

	err := s.store.SaveSMSLog(s.ctx, &domain.SMSLog{ID: "s3", SourceID: "<a@x>", RawText: "raw"})
	assert.True(s.T(), errors.Is(err, domain.ErrConflict))

	logs, err := s.store.ListSMSLogs(s.ctx, domain.SMSLogFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), logs, 2)
	assert.Equal(s.T(), "s2", logs[0].ID)

	logs, err = s.store.ListSMSLogs(s.ctx, domain.SMSLogFilter{Sender: "bank"})
	require.NoError(s.T(), err)
	require.Len(s.T(), logs, 1)
	assert.Equal(s.T(), "s2", logs[0].ID)
}

func TestStore_Health(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	// GORM 初始化时会 ping 一次
	mock.ExpectPing()
	store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: db}), config.DatabaseConfig{})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, store.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Health(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(errors.New(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`)))
	assert.True(t, isDuplicateKeyError(errors.New("UNIQUE constraint failed: email_requests.domain_id")))
	assert.True(t, isDuplicateKeyError(errors.New("Error 1062: Duplicate entry 'x' for key")))
	assert.False(t, isDuplicateKeyError(errors.New("connection reset")))
	assert.False(t, isDuplicateKeyError(nil))
}
