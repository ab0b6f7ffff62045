package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"maildash/backend/internal/auth"
	"maildash/backend/internal/config"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/health"
	"maildash/backend/internal/monitoring"
	"maildash/backend/internal/registrar"
	"maildash/backend/internal/service"
	"maildash/backend/internal/storage/memory"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type RouterTestSuite struct {
	suite.Suite
	router     *gin.Engine
	accounts   *auth.Service
	adminToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWithRegistry(reg, reg)

	tokens := auth.NewJWTManager(&config.JWTConfig{
		Secret:        "router-test-secret-0123456789abcdef",
		Issuer:        "maildash-test",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: time.Hour,
	})
	s.accounts = auth.NewService(store, tokens, nil)

	checker := health.NewChecker("test", "test", nil)
	checker.AddReadinessCheck("store", health.StoreCheck(store))

	s.router = NewRouter(RouterDependencies{
		Config:        &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		AuthService:   s.accounts,
		EmailRequests: service.NewEmailRequestService(store, domain.SecretPolicy{MinLength: 8}, nil, metrics, nil),
		Domains:       service.NewDomainService(store, registrar.NewFake("taken.example"), 1, metrics, nil),
		AdminService:  service.NewAdminService(store, s.accounts, nil),
		SMSLogs:       service.NewSMSLogService(store, 50, metrics, nil),
		Health:        checker,
		Metrics:       metrics,
	})

	_, err := s.accounts.CreateAccount(context.Background(), auth.RegisterInput{
		Username: "root",
		Email:    "root@maildash.test",
		Password: "root-password",
	}, domain.RoleSuper)
	s.Require().NoError(err)
	s.adminToken = s.login("root", "root-password")
}

func (s *RouterTestSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *RouterTestSuite) login(identifier, password string) string {
	w, env := s.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": identifier, "password": password})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	s.Require().NotEmpty(out.AccessToken)
	return out.AccessToken
}

func (s *RouterTestSuite) register(username string) string {
	w, env := s.do(http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@maildash.test",
		"password": "user-password",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		AccessToken string       `json:"accessToken"`
		User        *domain.User `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	s.Equal(domain.RoleUser, out.User.Role)
	return out.AccessToken
}

func (s *RouterTestSuite) purchase(token, name string) *domain.Domain {
	w, env := s.do(http.MethodPost, "/v1/domains", token, gin.H{"name": name, "years": 1})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var d domain.Domain
	s.Require().NoError(json.Unmarshal(env.Data, &d))
	return &d
}

func (s *RouterTestSuite) TestRegisterLoginAndMe() {
	token := s.register("alice")

	w, env := s.do(http.MethodGet, "/v1/auth/me", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var me domain.User
	s.Require().NoError(json.Unmarshal(env.Data, &me))
	s.Equal("alice", me.Username)

	// 邮箱登录
	s.NotEmpty(s.login("alice@maildash.test", "user-password"))

	w, env = s.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong-password"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("用户名或密码错误", env.Msg)

	w, _ = s.do(http.MethodGet, "/v1/auth/me", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterTestSuite) TestRegisterRejectsDuplicate() {
	s.register("bob")
	w, _ := s.do(http.MethodPost, "/v1/auth/register", "", gin.H{
		"username": "bob",
		"email":    "other@maildash.test",
		"password": "user-password",
	})
	s.Equal(http.StatusConflict, w.Code)
}

func (s *RouterTestSuite) TestEmailRequestLifecycle() {
	userToken := s.register("carol")
	d := s.purchase(userToken, "carol-mail.example")
	s.Equal(domain.DomainStatusActive, d.Status)

	// 提交申请
	w, env := s.do(http.MethodPost, "/v1/email-requests", userToken, gin.H{
		"domainId": d.ID,
		"username": "Support",
		"secret":   "mailbox-secret",
		"notes":    "team inbox",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var submitted map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &submitted))
	s.Equal("support@carol-mail.example", submitted["fullEmailAddress"])
	s.Equal(string(domain.RequestStatusPending), submitted["status"])
	s.NotContains(submitted, "secret")
	requestID := submitted["id"].(string)

	// 重复提交
	w, _ = s.do(http.MethodPost, "/v1/email-requests", userToken, gin.H{
		"domainId": d.ID,
		"username": "support",
		"secret":   "mailbox-secret",
	})
	s.Equal(http.StatusConflict, w.Code)

	// 普通用户不能审批
	w, _ = s.do(http.MethodPatch, "/v1/admin/email-requests/"+requestID, userToken, gin.H{"status": "created"})
	s.Equal(http.StatusForbidden, w.Code)

	// 管理员审批通过，响应中带密码
	w, env = s.do(http.MethodPatch, "/v1/admin/email-requests/"+requestID, s.adminToken, gin.H{
		"status":           "created",
		"outboundSettings": gin.H{"server": "smtp.carol-mail.example", "port": 465, "security": "SSL/TLS"},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var approved map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &approved))
	s.Equal(string(domain.RequestStatusCreated), approved["status"])
	s.Equal("mailbox-secret", approved["secret"])

	// 域名下出现新邮箱
	w, env = s.do(http.MethodGet, "/v1/domains/"+d.ID, userToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var withMailbox domain.Domain
	s.Require().NoError(json.Unmarshal(env.Data, &withMailbox))
	s.Require().Len(withMailbox.Mailboxes, 1)
	s.Equal("support@carol-mail.example", withMailbox.Mailboxes[0].FullEmail)

	// 已开通后改为拒绝
	w, _ = s.do(http.MethodPatch, "/v1/admin/email-requests/"+requestID, s.adminToken, gin.H{"status": "rejected"})
	s.Equal(http.StatusConflict, w.Code)

	// 目标状态无效
	w, _ = s.do(http.MethodPatch, "/v1/admin/email-requests/"+requestID, s.adminToken, gin.H{"status": "archived"})
	s.Equal(http.StatusBadRequest, w.Code)

	// 申请人不能删除已开通的申请
	w, _ = s.do(http.MethodDelete, "/v1/email-requests/"+requestID, userToken, nil)
	s.Equal(http.StatusForbidden, w.Code)

	// 申请人视角不含密码
	w, env = s.do(http.MethodGet, "/v1/email-requests/"+requestID, userToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var own map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &own))
	s.NotContains(own, "secret")

	// 管理员可以删除
	w, _ = s.do(http.MethodDelete, "/v1/email-requests/"+requestID, s.adminToken, nil)
	s.Equal(http.StatusNoContent, w.Code)

	w, _ = s.do(http.MethodGet, "/v1/email-requests/"+requestID, s.adminToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestEmailRequestVisibility() {
	aliceToken := s.register("alice")
	bobToken := s.register("bob")
	d := s.purchase(aliceToken, "alice-mail.example")

	w, env := s.do(http.MethodPost, "/v1/email-requests", aliceToken, gin.H{
		"domainId": d.ID,
		"username": "hello",
		"secret":   "mailbox-secret",
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	var submitted domain.EmailRequest
	s.Require().NoError(json.Unmarshal(env.Data, &submitted))

	w, _ = s.do(http.MethodGet, "/v1/email-requests/"+submitted.ID, bobToken, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, "/v1/email-requests", bobToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var bobList []domain.EmailRequest
	s.Require().NoError(json.Unmarshal(env.Data, &bobList))
	s.Empty(bobList)

	w, env = s.do(http.MethodGet, "/v1/email-requests?status=pending", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var all []map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &all))
	s.Require().Len(all, 1)
	s.Equal("mailbox-secret", all[0]["secret"])

	w, _ = s.do(http.MethodGet, "/v1/email-requests?status=bogus", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestSubmitUnknownDomain() {
	token := s.register("dave")
	w, env := s.do(http.MethodPost, "/v1/email-requests", token, gin.H{
		"domainId": "missing",
		"username": "hello",
		"secret":   "mailbox-secret",
	})
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(http.StatusNotFound, env.Code)
}

func (s *RouterTestSuite) TestDomainPurchaseTaken() {
	token := s.register("erin")
	w, _ := s.do(http.MethodPost, "/v1/domains", token, gin.H{"name": "taken.example"})
	s.Equal(http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodPost, "/v1/domains", token, gin.H{"name": "not a domain"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestAdminRoutesRequireAdmin() {
	token := s.register("frank")
	for _, path := range []string{"/v1/admin/users", "/v1/sms-logs"} {
		w, _ := s.do(http.MethodGet, path, token, nil)
		s.Equal(http.StatusForbidden, w.Code, path)
	}

	w, env := s.do(http.MethodGet, "/v1/admin/users?pageSize=10", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(string(env.Data), "frank")
}

func (s *RouterTestSuite) TestAdminCannotDeleteSelf() {
	w, env := s.do(http.MethodGet, "/v1/auth/me", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var me domain.User
	s.Require().NoError(json.Unmarshal(env.Data, &me))

	w, _ = s.do(http.MethodDelete, "/v1/admin/users/"+me.ID, s.adminToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *RouterTestSuite) TestSMSLogIngestAndList() {
	body := gin.H{
		"sourceId": "msg-1",
		"subject":  "SMS from +15550102000",
		"raw":      "From: +15550102000\nDate: 2024-03-05 14:22:10\nMessage: Your code is 482913",
	}
	w, _ := s.do(http.MethodPost, "/v1/sms-logs", s.adminToken, body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	// 相同 sourceId 返回已有记录
	w, _ = s.do(http.MethodPost, "/v1/sms-logs", s.adminToken, body)
	s.Equal(http.StatusOK, w.Code)

	w, env := s.do(http.MethodGet, "/v1/sms-logs?q=482913", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var logs []domain.SMSLog
	s.Require().NoError(json.Unmarshal(env.Data, &logs))
	s.Len(logs, 1)

	w, _ = s.do(http.MethodGet, "/v1/sms-logs?limit=abc", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestHealthAndMetrics() {
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"healthy"`)

	w, _ = s.do(http.MethodGet, "/health/ready", "", nil)
	s.Equal(http.StatusOK, w.Code)

	s.register("grace")
	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "maildash_users_registered_total 1")
	s.Contains(w.Body.String(), "maildash_http_requests_total")
}

func TestRouterWithoutOptionalDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	accounts := auth.NewService(store, auth.NewJWTManager(&config.JWTConfig{
		Secret:        "router-test-secret-0123456789abcdef",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
	}), nil)

	router := NewRouter(RouterDependencies{
		Config:      &config.Config{},
		AuthService: accounts,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ws", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
