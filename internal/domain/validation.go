package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度

	// 账户密码长度限制（bcrypt 只使用前 72 字节）
	MinPasswordLength = 8
	MaxPasswordLength = 72

	// 账户用户名长度限制
	MinUsernameLength = 3
	MaxUsernameLength = 32

	// 邮箱密码最短长度，任何策略下都强制执行
	MinSecretLength = 8
	MaxSecretLength = 128
)

var (
	// 邮箱本地部分：字母数字开头结尾，中间允许 . _ -
	localPartRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?$`)

	// 域名验证（支持子域名，至少两级）
	domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

	// 账户用户名验证（必须以字母开头）
	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*[a-zA-Z0-9]$`)
)

// ValidateAccountEmail 验证账户邮箱
func ValidateAccountEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > MaxEmailLength {
		return ValidationFailed("invalid email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ValidationFailed("invalid email")
	}
	at := strings.LastIndex(email, "@")
	if err := ValidateDomainName(strings.ToLower(email[at+1:])); err != nil {
		return ValidationFailed("invalid email")
	}
	return nil
}

// ValidateAccountUsername 验证账户用户名
func ValidateAccountUsername(username string) error {
	switch {
	case len(username) < MinUsernameLength:
		return ValidationFailed("username too short (min 3 chars)")
	case len(username) > MaxUsernameLength:
		return ValidationFailed("username too long (max 32 chars)")
	case !usernameRegex.MatchString(username):
		return ValidationFailed("invalid username format")
	}
	return nil
}

// ValidateAccountPassword 验证账户密码长度
func ValidateAccountPassword(password string) error {
	if len(password) < MinPasswordLength {
		return ValidationFailed("password too short (min 8 chars)")
	}
	if len(password) > MaxPasswordLength {
		return ValidationFailed("password too long (max 72 chars)")
	}
	return nil
}

// ValidateMailboxUsername 验证已规范化的邮箱用户名
func ValidateMailboxUsername(username string) error {
	if username == "" {
		return ValidationFailed("mailbox username is required")
	}
	if len(username) > MaxLocalPartLength {
		return ValidationFailed("mailbox username too long (max 64 chars)")
	}
	if !localPartRegex.MatchString(username) {
		return ValidationFailed("invalid mailbox username format")
	}
	for _, seq := range []string{"..", ".-", "-.", "--", "__", "_.", "._", "_-", "-_"} {
		if strings.Contains(username, seq) {
			return ValidationFailed("invalid mailbox username format")
		}
	}
	return nil
}

// ValidateDomainName 验证已转小写的域名
func ValidateDomainName(name string) error {
	if name == "" || len(name) > MaxDomainLength {
		return ValidationFailed("invalid domain name")
	}
	if !domainRegex.MatchString(name) {
		return ValidationFailed("invalid domain name")
	}
	return nil
}

// SecretPolicy 邮箱密码强度策略
//
// 长度下限始终不低于 MinSecretLength；RequireComplex 为 true 时
// 额外要求同时包含大写、小写、数字和符号。
type SecretPolicy struct {
	MinLength      int
	RequireComplex bool
}

// DefaultSecretPolicy 默认策略：只强制长度
func DefaultSecretPolicy() SecretPolicy {
	return SecretPolicy{MinLength: MinSecretLength}
}

// Validate 按策略校验邮箱密码
func (p SecretPolicy) Validate(secret string) error {
	minLen := p.MinLength
	if minLen < MinSecretLength {
		minLen = MinSecretLength
	}
	if len(secret) < minLen {
		return ValidationFailed("secret too short")
	}
	if len(secret) > MaxSecretLength {
		return ValidationFailed("secret too long (max 128 chars)")
	}
	if !p.RequireComplex {
		return nil
	}

	var upper, lower, digit, symbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return ValidationFailed("secret must mix upper case, lower case, digits and symbols")
	}
	return nil
}
