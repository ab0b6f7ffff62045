package memory

import (
	"context"
	"sync"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/storage"
)

// Store 使用内存保存仪表盘数据，主要用于开发验证和测试。
//
// 所有写操作持有同一把互斥锁；Atomic 在锁内对状态做写时复制，
// fn 失败时丢弃副本，从而获得与数据库事务相同的全有或全无语义。
type Store struct {
	mu    sync.RWMutex
	state *state
}

// state 内存数据及索引。实体按指针存放且从不就地修改，
// 更新时总是写入新的副本，因此克隆 map 即可得到独立快照。
type state struct {
	users      map[string]*domain.User // userID -> user
	byEmail    map[string]string       // email -> userID
	byUsername map[string]string       // username -> userID

	domains      map[string]*domain.Domain // domainID -> domain（含邮箱列表）
	byDomainName map[string]string         // name -> domainID

	requests  map[string]*domain.EmailRequest // requestID -> request
	byMailbox map[string]string               // domainID/username -> requestID

	smsLogs  map[string]*domain.SMSLog // logID -> log
	bySource map[string]string         // sourceID -> logID
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		users:        make(map[string]*domain.User),
		byEmail:      make(map[string]string),
		byUsername:   make(map[string]string),
		domains:      make(map[string]*domain.Domain),
		byDomainName: make(map[string]string),
		requests:     make(map[string]*domain.EmailRequest),
		byMailbox:    make(map[string]string),
		smsLogs:      make(map[string]*domain.SMSLog),
		bySource:     make(map[string]string),
	}
}

func (st *state) clone() *state {
	return &state{
		users:        cloneMap(st.users),
		byEmail:      cloneMap(st.byEmail),
		byUsername:   cloneMap(st.byUsername),
		domains:      cloneMap(st.domains),
		byDomainName: cloneMap(st.byDomainName),
		requests:     cloneMap(st.requests),
		byMailbox:    cloneMap(st.byMailbox),
		smsLogs:      cloneMap(st.smsLogs),
		bySource:     cloneMap(st.bySource),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Atomic 在单个事务中执行 fn
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&view{st: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终可用
func (s *Store) Health(ctx context.Context) error {
	return nil
}

func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{st: s.state})
}

func (s *Store) write(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.state})
}

// view 在已持有锁的前提下操作某个状态快照，实现 storage.Tx
type view struct {
	st *state
}

var _ storage.Tx = (*view)(nil)
