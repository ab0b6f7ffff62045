package smtp

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"
)

// ParsedEmail 表示解析后的转发邮件
type ParsedEmail struct {
	MessageID string
	Subject   string
	From      string
	Text      string
}

// ParseEmail 解析原始邮件，提取短信正文
//
// 只有 HTML 正文时由 enmime 转为纯文本。
func ParseEmail(raw []byte) (*ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	return &ParsedEmail{
		MessageID: strings.TrimSpace(env.GetHeader("Message-ID")),
		Subject:   env.GetHeader("Subject"),
		From:      env.GetHeader("From"),
		Text:      strings.TrimSpace(env.Text),
	}, nil
}
