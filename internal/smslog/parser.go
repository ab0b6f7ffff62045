// Package smslog 从短信转发邮件正文中提取发送方、时间和内容
package smslog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"maildash/backend/internal/domain"
)

// Record 解析结果
type Record struct {
	Sender  string
	SentAt  *time.Time
	Content string
	Status  domain.ParseStatus
	// Strategy 命中的解析策略，便于排查
	Strategy string
}

// ParseFailure 正文中没有任何可用字段
type ParseFailure struct {
	Reason string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("sms body not parseable: %s", e.Reason)
}

type field int

const (
	fieldNone field = iota
	fieldSender
	fieldDate
	fieldContent
)

var labels = map[string]field{
	"from":     fieldSender,
	"sender":   fieldSender,
	"发件人":      fieldSender,
	"发送方":      fieldSender,
	"号码":       fieldSender,
	"date":     fieldDate,
	"sent":     fieldDate,
	"received": fieldDate,
	"time":     fieldDate,
	"时间":       fieldDate,
	"日期":       fieldDate,
	"message":  fieldContent,
	"body":     fieldContent,
	"content":  fieldContent,
	"text":     fieldContent,
	"内容":       fieldContent,
	"短信内容":     fieldContent,
}

var (
	labelPattern   = regexp.MustCompile(`^\s*([A-Za-z]+|[\p{Han}]+)\s*[:：]\s*(.*)$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{2,19}$`)
	shortIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{1,19}$`)
)

// 常见的日期格式，按顺序尝试
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 3:04 PM",
	"01/02/2006 3:04:05 PM",
	"Jan 2, 2006 at 3:04 PM",
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006 3:04 PM",
	"2 Jan 2006 15:04",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006年01月02日 15:04",
	"2006年1月2日 15:04",
	"2006年01月02日 15:04:05",
}

// ParseDate 按已知格式解析日期字符串
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Parse 解析短信转发正文
//
// 依次尝试带标签字段（"From:"、"发件人："等）和无标签的"发送方/时间/内容"三段式布局。
// 至少提取到内容且发送方和时间齐全时为 parsed，只有部分字段时为 partial，
// 没有任何可用字段时返回 *ParseFailure。
//
// 参数:
//   - raw: 邮件正文纯文本
//
// 返回值:
//   - *Record: 解析结果
//   - error: *ParseFailure
func Parse(raw string) (*Record, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, &ParseFailure{Reason: "empty body"}
	}

	if rec := parseLabelled(lines); rec != nil {
		return finish(rec, "labelled")
	}
	if rec := parseHeaderless(lines); rec != nil {
		return finish(rec, "headerless")
	}
	return nil, &ParseFailure{Reason: "no sender, date or labelled content found"}
}

func finish(rec *Record, strategy string) (*Record, error) {
	rec.Content = strings.TrimSpace(rec.Content)
	rec.Sender = strings.TrimSpace(rec.Sender)
	rec.Strategy = strategy

	switch {
	case rec.Content != "" && rec.Sender != "" && rec.SentAt != nil:
		rec.Status = domain.ParseStatusParsed
	case rec.Content != "" || rec.Sender != "" || rec.SentAt != nil:
		rec.Status = domain.ParseStatusPartial
	default:
		return nil, &ParseFailure{Reason: "no usable fields"}
	}
	return rec, nil
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		// 转发邮件末尾的签名分隔线之后的内容忽略
		if line == "--" || line == "-- " {
			break
		}
		out = append(out, line)
	}
	// 去掉首尾空行
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// parseLabelled 识别 "标签: 值" 形式；内容标签之后的所有行都归入内容
func parseLabelled(lines []string) *Record {
	rec := &Record{}
	matched := false

	for i, line := range lines {
		m := labelPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		f := labels[strings.ToLower(m[1])]
		value := strings.TrimSpace(m[2])
		switch f {
		case fieldSender:
			if rec.Sender == "" {
				rec.Sender = value
				matched = true
			}
		case fieldDate:
			if rec.SentAt == nil {
				if t, ok := ParseDate(value); ok {
					rec.SentAt = &t
					matched = true
				}
			}
		case fieldContent:
			rest := append([]string{value}, lines[i+1:]...)
			rec.Content = strings.Join(rest, "\n")
			matched = true
			return rec
		}
	}

	if !matched {
		return nil
	}
	// 没有内容标签时，取最后一个标签行之后的文本作为内容
	last := -1
	for i, line := range lines {
		if m := labelPattern.FindStringSubmatch(line); m != nil && labels[strings.ToLower(m[1])] != fieldNone {
			last = i
		}
	}
	if last >= 0 && last+1 < len(lines) {
		rec.Content = strings.Join(lines[last+1:], "\n")
	}
	return rec
}

// parseHeaderless 识别 "发送方\n时间\n内容" 布局，也接受省略发送方的 "时间\n内容"
func parseHeaderless(lines []string) *Record {
	nonEmpty := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) < 2 {
		return nil
	}

	if looksLikeSender(nonEmpty[0]) {
		if t, ok := ParseDate(nonEmpty[1]); ok {
			return &Record{
				Sender:  nonEmpty[0],
				SentAt:  &t,
				Content: strings.Join(nonEmpty[2:], "\n"),
			}
		}
	}
	if t, ok := ParseDate(nonEmpty[0]); ok {
		return &Record{
			SentAt:  &t,
			Content: strings.Join(nonEmpty[1:], "\n"),
		}
	}
	return nil
}

func looksLikeSender(s string) bool {
	return phonePattern.MatchString(s) || shortIDPattern.MatchString(s)
}
