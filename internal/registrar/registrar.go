// Package registrar 封装域名注册商 API
package registrar

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Availability 域名可注册状态
type Availability struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Premium   bool   `json:"premium"`
}

// Registration 注册结果
type Registration struct {
	Name          string `json:"name"`
	DomainID      string `json:"domainId"`
	OrderID       string `json:"orderId"`
	ChargedAmount string `json:"chargedAmount"`
	// Pending 注册商异步处理，域名暂未生效
	Pending bool `json:"pending"`
}

// RegisteredDomain 注册商账户下的域名
type RegisteredDomain struct {
	RegistrarID string
	Name        string
	CreatedAt   *time.Time
	ExpiresAt   *time.Time
	IsExpired   bool
	AutoRenew   bool
}

// Registrar 注册商客户端接口，operator 用于选择凭据
type Registrar interface {
	Check(ctx context.Context, operator string, names []string) ([]Availability, error)
	Register(ctx context.Context, operator, name string, years int) (*Registration, error)
	ListDomains(ctx context.Context, operator string) ([]RegisteredDomain, error)
}

// UpstreamFormatError 注册商响应无法按约定结构解析
type UpstreamFormatError struct {
	Command string
	Reason  string
	Err     error
}

func (e *UpstreamFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registrar %s: malformed response: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("registrar %s: malformed response: %s", e.Command, e.Reason)
}

func (e *UpstreamFormatError) Unwrap() error {
	return e.Err
}

// ErrorDetail 注册商返回的单条错误
type ErrorDetail struct {
	Number  string
	Message string
}

// APIError 注册商返回 Status="ERROR"
type APIError struct {
	Command string
	Errors  []ErrorDetail
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		if d.Number != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", d.Number, d.Message))
		} else {
			parts = append(parts, d.Message)
		}
	}
	return fmt.Sprintf("registrar %s failed: %s", e.Command, strings.Join(parts, "; "))
}

// HasNumber 判断是否包含指定错误码
func (e *APIError) HasNumber(number string) bool {
	for _, d := range e.Errors {
		if d.Number == number {
			return true
		}
	}
	return false
}
