package smslog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maildash/backend/internal/domain"
)

func TestParse_Corpus(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		sender   string
		sentAt   string // RFC3339，空表示未提取
		content  string
		status   domain.ParseStatus
		strategy string
	}{
		{
			name:     "英文标签完整",
			raw:      "From: +1 555 010 2000\r\nDate: 2024-03-05 14:22:10\r\nMessage: Your verification code is 482913.\r\nDo not share it.\r\n",
			sender:   "+1 555 010 2000",
			sentAt:   "2024-03-05T14:22:10Z",
			content:  "Your verification code is 482913.\nDo not share it.",
			status:   domain.ParseStatusParsed,
			strategy: "labelled",
		},
		{
			name:     "中文标签全角冒号",
			raw:      "发件人：10690000\n时间：2024年03月05日 09:15\n内容：【银行】您的账户余额变动。",
			sender:   "10690000",
			sentAt:   "2024-03-05T09:15:00Z",
			content:  "【银行】您的账户余额变动。",
			status:   domain.ParseStatusParsed,
			strategy: "labelled",
		},
		{
			name:     "标签后接正文无内容标签",
			raw:      "Sender: BANKCO\nReceived: Mar 5, 2024 at 2:22 PM\n\nPayment of $20.00 received.",
			sender:   "BANKCO",
			sentAt:   "2024-03-05T14:22:00Z",
			content:  "Payment of $20.00 received.",
			status:   domain.ParseStatusParsed,
			strategy: "labelled",
		},
		{
			name:     "只有发送方标签",
			raw:      "From: 12345\n",
			sender:   "12345",
			status:   domain.ParseStatusPartial,
			strategy: "labelled",
		},
		{
			name:     "日期无法解析",
			raw:      "From: ACME\nDate: yesterday-ish\nBody: Hello there",
			sender:   "ACME",
			content:  "Hello there",
			status:   domain.ParseStatusPartial,
			strategy: "labelled",
		},
		{
			name:     "无标签三段式",
			raw:      "+447700900123\n03/05/2024 14:22\nMeet at 6?\n",
			sender:   "+447700900123",
			sentAt:   "2024-03-05T14:22:00Z",
			content:  "Meet at 6?",
			status:   domain.ParseStatusParsed,
			strategy: "headerless",
		},
		{
			name:     "无标签省略发送方",
			raw:      "Tue, 05 Mar 2024 14:22:10 +0000\nYour parcel is out for delivery",
			sentAt:   "2024-03-05T14:22:10Z",
			content:  "Your parcel is out for delivery",
			status:   domain.ParseStatusPartial,
			strategy: "headerless",
		},
		{
			name:     "忽略签名",
			raw:      "From: 95588\nMessage: code 1234\n--\nSent from my forwarder",
			sender:   "95588",
			content:  "code 1234",
			status:   domain.ParseStatusPartial,
			strategy: "labelled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := Parse(tc.raw)
			require.NoError(t, err)

			assert.Equal(t, tc.sender, rec.Sender)
			assert.Equal(t, tc.content, rec.Content)
			assert.Equal(t, tc.status, rec.Status)
			assert.Equal(t, tc.strategy, rec.Strategy)
			if tc.sentAt == "" {
				assert.Nil(t, rec.SentAt)
			} else {
				want, err := time.Parse(time.RFC3339, tc.sentAt)
				require.NoError(t, err)
				require.NotNil(t, rec.SentAt)
				assert.True(t, want.Equal(*rec.SentAt), "got %v", rec.SentAt)
			}
		})
	}
}

func TestParse_Failures(t *testing.T) {
	for _, raw := range []string{
		"",
		"   \n\n  ",
		"just some forwarded text without structure",
		"Hello\nWorld\nagain",
	} {
		rec, err := Parse(raw)
		assert.Nil(t, rec)
		var failure *ParseFailure
		assert.True(t, errors.As(err, &failure), "raw=%q", raw)
	}
}

func TestParseDate(t *testing.T) {
	for _, value := range []string{
		"2024-03-05T14:22:10+08:00",
		"2024/03/05 14:22",
		"01/02/2024 3:04 PM",
		"5 Mar 2024 14:22",
		"2024年3月5日 14:22",
	} {
		_, ok := ParseDate(value)
		assert.True(t, ok, value)
	}

	_, ok := ParseDate("next tuesday")
	assert.False(t, ok)
}
