package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAccountEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected bool
	}{
		{"Valid email", "test@example.com", true},
		{"Valid email with subdomain", "user@mail.example.com", true},
		{"Valid email with plus", "user+tag@example.com", true},
		{"Invalid email - no @", "testexample.com", false},
		{"Invalid email - no domain", "test@", false},
		{"Invalid email - single label domain", "test@localhost", false},
		{"Invalid email - display name", "Bob <bob@example.com>", false},
		{"Invalid email - empty", "", false},
		{"Invalid email - spaces", "test @example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccountEmail(tt.email)
			assert.Equal(t, tt.expected, err == nil)
			if err != nil {
				assert.True(t, errors.Is(err, ErrValidationFailed))
			}
		})
	}
}

func TestValidateAccountUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected bool
	}{
		{"Valid username", "testuser", true},
		{"Valid username with numbers", "user123", true},
		{"Valid username with underscore", "test_user", true},
		{"Valid minimum length", "abc", true},
		{"Valid maximum length", "abcdefghijklmnopqrstuvwxyz123456", true},
		{"Invalid - too short", "ab", false},
		{"Invalid - too long", "abcdefghijklmnopqrstuvwxyz1234567", false},
		{"Invalid - spaces", "test user", false},
		{"Invalid - starts with number", "123user", false},
		{"Invalid - ends with dash", "testuser-", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateAccountUsername(tt.username) == nil)
		})
	}
}

func TestValidateMailboxUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected bool
	}{
		{"单字符", "a", true},
		{"普通用户名", "sales", true},
		{"带点号", "first.last", true},
		{"带连字符", "help-desk", true},
		{"空用户名", "", false},
		{"大写未规范化", "Sales", false},
		{"以点号开头", ".sales", false},
		{"以连字符结尾", "sales-", false},
		{"连续点号", "a..b", false},
		{"混合特殊字符", "a._b", false},
		{"包含 @", "a@b", false},
		{"超长", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateMailboxUsername(tt.username) == nil)
		})
	}
}

func TestValidateDomainName(t *testing.T) {
	tests := []struct {
		domain   string
		expected bool
	}{
		{"example.com", true},
		{"mail.example.co.uk", true},
		{"my-shop.io", true},
		{"localhost", false},
		{"-bad.com", false},
		{"bad-.com", false},
		{"Example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateDomainName(tt.domain) == nil)
		})
	}
}

func TestSecretPolicy_Validate(t *testing.T) {
	t.Run("默认策略只检查长度", func(t *testing.T) {
		p := DefaultSecretPolicy()
		assert.NoError(t, p.Validate("abcdefgh"))
		assert.Error(t, p.Validate("abc"))
	})

	t.Run("最小长度不能被配置降低", func(t *testing.T) {
		p := SecretPolicy{MinLength: 4}
		err := p.Validate("abcde")
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})

	t.Run("复杂度策略", func(t *testing.T) {
		p := SecretPolicy{MinLength: 8, RequireComplex: true}
		assert.NoError(t, p.Validate("Abcd1234!"))
		assert.Error(t, p.Validate("abcd1234!"))
		assert.Error(t, p.Validate("ABCD1234!"))
		assert.Error(t, p.Validate("Abcdefgh!"))
		assert.Error(t, p.Validate("Abcd12345"))
	})

	t.Run("超长", func(t *testing.T) {
		assert.Error(t, DefaultSecretPolicy().Validate(strings.Repeat("a", 129)))
	})
}

func TestTransportSettings_Merge(t *testing.T) {
	t.Run("保留未提交字段", func(t *testing.T) {
		base := &TransportSettings{Server: "a", Port: 587}
		merged := base.Merge(&TransportSettings{Port: 465})
		assert.Equal(t, &TransportSettings{Server: "a", Port: 465}, merged)
		assert.Equal(t, 587, base.Port, "原对象不应被修改")
	})

	t.Run("原值为空", func(t *testing.T) {
		var base *TransportSettings
		merged := base.Merge(&TransportSettings{Server: "mail.example.com", Security: "STARTTLS"})
		assert.Equal(t, &TransportSettings{Server: "mail.example.com", Security: "STARTTLS"}, merged)
	})

	t.Run("两者都为空", func(t *testing.T) {
		var base *TransportSettings
		assert.Nil(t, base.Merge(nil))
	})
}

func TestError_Is(t *testing.T) {
	err := Conflict("mailbox already requested")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "mailbox already requested", MessageOf(err))

	wrapped := WrapError(KindUpstreamInconsistency, "domain missing", errors.New("boom"))
	assert.True(t, errors.Is(wrapped, ErrUpstreamInconsistency))
	assert.Contains(t, wrapped.Error(), "boom")
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
