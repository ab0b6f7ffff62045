package domain

import "time"

// ParseStatus 短信转发邮件的解析结果
type ParseStatus string

const (
	ParseStatusParsed  ParseStatus = "parsed"  // 发送方、时间、内容均已提取
	ParseStatusPartial ParseStatus = "partial" // 仅提取到部分字段
	ParseStatusFailed  ParseStatus = "failed"  // 未提取到任何字段，仅保留原文
)

// SMSLog 短信转发记录，原始正文始终保留
type SMSLog struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SourceID    string      `json:"sourceId" gorm:"uniqueIndex;type:varchar(255);not null"`
	Subject     string      `json:"subject" gorm:"type:varchar(500)"`
	Sender      string      `json:"sender" gorm:"type:varchar(255);index"`
	SentAt      *time.Time  `json:"sentAt,omitempty"`
	Content     string      `json:"content" gorm:"type:text"`
	RawText     string      `json:"rawText" gorm:"type:text;not null"`
	ParseStatus ParseStatus `json:"parseStatus" gorm:"type:varchar(20);index"`
	ParseError  string      `json:"parseError,omitempty" gorm:"type:varchar(500)"`
	ReceivedAt  time.Time   `json:"receivedAt" gorm:"index"`
}

// SMSLogFilter 短信记录筛选条件
type SMSLogFilter struct {
	Query  string // 匹配内容或发送方
	Sender string
	Limit  int
}
