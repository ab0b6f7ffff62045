package registrar

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"maildash/backend/internal/credcache"
)

const (
	commandCheck   = "namecheap.domains.check"
	commandCreate  = "namecheap.domains.create"
	commandGetList = "namecheap.domains.getList"

	listPageSize    = 100
	maxResponseSize = 4 << 20
	dateLayout      = "01/02/2006"
)

// 凭据失效相关的错误码，出现时清除缓存的凭据
var credentialErrorNumbers = []string{"1011102", "1011150", "1010101"}

// Contact 注册域名时提交的联系人信息
type Contact struct {
	FirstName     string
	LastName      string
	Address1      string
	City          string
	StateProvince string
	PostalCode    string
	Country       string
	Phone         string
	EmailAddress  string
}

// Options 客户端配置
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Contact    Contact
}

// Client 注册商 XML API 客户端
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	creds    *credcache.Cache
	contact  Contact
	log      *zap.Logger
}

var _ Registrar = (*Client)(nil)

// NewClient 创建注册商客户端
//
// 参数:
//   - opts: 端点、超时等配置
//   - creds: 按操作员缓存的 API 凭据
//   - log: 日志记录器
func NewClient(opts Options, creds *credcache.Cache, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: opts.Endpoint,
		timeout:  timeout,
		http:     httpClient,
		creds:    creds,
		contact:  opts.Contact,
		log:      log,
	}
}

// Check 查询域名是否可注册
func (c *Client) Check(ctx context.Context, operator string, names []string) ([]Availability, error) {
	params := url.Values{}
	params.Set("DomainList", strings.Join(names, ","))

	resp, err := c.call(ctx, operator, commandCheck, params)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domainCheckResult, len(resp.DomainCheckResults))
	for _, r := range resp.DomainCheckResults {
		byName[strings.ToLower(r.Domain)] = r
	}

	out := make([]Availability, 0, len(names))
	for _, name := range names {
		r, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, &UpstreamFormatError{Command: commandCheck, Reason: "missing result for " + name}
		}
		out = append(out, Availability{
			Name:      strings.ToLower(name),
			Available: r.Available,
			Premium:   r.IsPremiumName,
		})
	}
	return out, nil
}

// Register 注册域名
func (c *Client) Register(ctx context.Context, operator, name string, years int) (*Registration, error) {
	if years <= 0 {
		years = 1
	}
	params := url.Values{}
	params.Set("DomainName", name)
	params.Set("Years", strconv.Itoa(years))
	for _, prefix := range []string{"Registrant", "Tech", "Admin", "AuxBilling"} {
		params.Set(prefix+"FirstName", c.contact.FirstName)
		params.Set(prefix+"LastName", c.contact.LastName)
		params.Set(prefix+"Address1", c.contact.Address1)
		params.Set(prefix+"City", c.contact.City)
		params.Set(prefix+"StateProvince", c.contact.StateProvince)
		params.Set(prefix+"PostalCode", c.contact.PostalCode)
		params.Set(prefix+"Country", c.contact.Country)
		params.Set(prefix+"Phone", c.contact.Phone)
		params.Set(prefix+"EmailAddress", c.contact.EmailAddress)
	}

	resp, err := c.call(ctx, operator, commandCreate, params)
	if err != nil {
		return nil, err
	}
	r := resp.DomainCreateResult
	if r == nil {
		return nil, &UpstreamFormatError{Command: commandCreate, Reason: "missing DomainCreateResult"}
	}
	if !r.Registered && !r.NonRealTimeDomain {
		return nil, &APIError{Command: commandCreate, Errors: []ErrorDetail{{Message: "domain was not registered"}}}
	}

	return &Registration{
		Name:          strings.ToLower(r.Domain),
		DomainID:      r.DomainID,
		OrderID:       r.OrderID,
		ChargedAmount: r.ChargedAmount,
		Pending:       !r.Registered || r.NonRealTimeDomain,
	}, nil
}

// ListDomains 分页拉取账户下全部域名
func (c *Client) ListDomains(ctx context.Context, operator string) ([]RegisteredDomain, error) {
	var out []RegisteredDomain
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("Page", strconv.Itoa(page))
		params.Set("PageSize", strconv.Itoa(listPageSize))

		resp, err := c.call(ctx, operator, commandGetList, params)
		if err != nil {
			return nil, err
		}
		if resp.DomainGetListResult == nil {
			return nil, &UpstreamFormatError{Command: commandGetList, Reason: "missing DomainGetListResult"}
		}

		for _, d := range resp.DomainGetListResult.Domains {
			item, err := d.toRegisteredDomain()
			if err != nil {
				return nil, &UpstreamFormatError{Command: commandGetList, Reason: "invalid domain entry " + d.Name, Err: err}
			}
			out = append(out, item)
		}

		if resp.Paging == nil || len(resp.DomainGetListResult.Domains) == 0 {
			break
		}
		size := resp.Paging.PageSize
		if size <= 0 {
			size = listPageSize
		}
		if page*size >= resp.Paging.TotalItems {
			break
		}
	}
	return out, nil
}

// call 发起一次 API 调用并解析通用响应外壳
func (c *Client) call(ctx context.Context, operator, command string, params url.Values) (*commandResponse, error) {
	cred, err := c.creds.Get(ctx, operator)
	if err != nil {
		return nil, err
	}

	params.Set("ApiUser", cred.APIUser)
	params.Set("ApiKey", cred.APIKey)
	params.Set("UserName", cred.Username)
	params.Set("ClientIp", cred.ClientIP)
	params.Set("Command", command)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build registrar request: %w", err)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registrar %s: %w", command, err)
	}
	defer res.Body.Close()

	c.log.Debug("registrar call",
		zap.String("command", command),
		zap.String("operator", operator),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registrar %s: unexpected http status %d", command, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("registrar %s: read body: %w", command, err)
	}

	var envelope apiResponse
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, &UpstreamFormatError{Command: command, Reason: "invalid xml", Err: err}
	}

	switch envelope.Status {
	case "OK":
	case "ERROR":
		apiErr := &APIError{Command: command}
		for _, e := range envelope.Errors {
			apiErr.Errors = append(apiErr.Errors, ErrorDetail{Number: e.Number, Message: strings.TrimSpace(e.Message)})
		}
		if len(apiErr.Errors) == 0 {
			return nil, &UpstreamFormatError{Command: command, Reason: "error status without error details"}
		}
		c.invalidateOnAuthError(ctx, operator, apiErr)
		return nil, apiErr
	default:
		return nil, &UpstreamFormatError{Command: command, Reason: fmt.Sprintf("unknown status %q", envelope.Status)}
	}

	if envelope.CommandResponse == nil {
		return nil, &UpstreamFormatError{Command: command, Reason: "missing CommandResponse"}
	}
	return envelope.CommandResponse, nil
}

func (c *Client) invalidateOnAuthError(ctx context.Context, operator string, apiErr *APIError) {
	for _, n := range credentialErrorNumbers {
		if apiErr.HasNumber(n) {
			if err := c.creds.Invalidate(context.WithoutCancel(ctx), operator); err != nil {
				c.log.Warn("failed to invalidate registrar credential", zap.Error(err))
			}
			return
		}
	}
}

// IsTimeout 判断是否为请求超时
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
