package registrar

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Fake 进程内模拟注册商，未配置 API Key 时用于本地开发和测试
type Fake struct {
	mu      sync.Mutex
	taken   map[string]bool
	owned   map[string]map[string]RegisteredDomain // operator -> name -> domain
	seq     int
	now     func() time.Time
	Pending bool // 为 true 时注册结果标记为异步处理
}

var _ Registrar = (*Fake)(nil)

// NewFake 创建模拟注册商，taken 中的域名视为已被他人注册
func NewFake(taken ...string) *Fake {
	f := &Fake{
		taken: make(map[string]bool),
		owned: make(map[string]map[string]RegisteredDomain),
		now:   time.Now,
	}
	for _, name := range taken {
		f.taken[strings.ToLower(name)] = true
	}
	return f
}

func (f *Fake) available(name string) bool {
	if f.taken[name] {
		return false
	}
	for _, domains := range f.owned {
		if _, ok := domains[name]; ok {
			return false
		}
	}
	return true
}

func (f *Fake) Check(ctx context.Context, operator string, names []string) ([]Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Availability, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(name)
		out = append(out, Availability{Name: name, Available: f.available(name)})
	}
	return out, nil
}

func (f *Fake) Register(ctx context.Context, operator, name string, years int) (*Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name = strings.ToLower(name)
	if !f.available(name) {
		return nil, &APIError{Command: commandCreate, Errors: []ErrorDetail{{Number: "2033409", Message: "domain is not available"}}}
	}
	if years <= 0 {
		years = 1
	}

	f.seq++
	now := f.now().UTC()
	expires := now.AddDate(years, 0, 0)
	id := strconv.Itoa(f.seq)
	if f.owned[operator] == nil {
		f.owned[operator] = make(map[string]RegisteredDomain)
	}
	f.owned[operator][name] = RegisteredDomain{
		RegistrarID: id,
		Name:        name,
		CreatedAt:   &now,
		ExpiresAt:   &expires,
	}
	return &Registration{Name: name, DomainID: id, OrderID: "order-" + id, Pending: f.Pending}, nil
}

func (f *Fake) ListDomains(ctx context.Context, operator string) ([]RegisteredDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]RegisteredDomain, 0, len(f.owned[operator]))
	for _, d := range f.owned[operator] {
		out = append(out, d)
	}
	return out, nil
}

// Seed 直接写入一个注册商侧域名，用于模拟同步数据
func (f *Fake) Seed(operator string, d RegisteredDomain) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owned[operator] == nil {
		f.owned[operator] = make(map[string]RegisteredDomain)
	}
	f.owned[operator][strings.ToLower(d.Name)] = d
}
