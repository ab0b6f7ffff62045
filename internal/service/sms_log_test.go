package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/storage/memory"
)

func TestSMSLogService_Ingest(t *testing.T) {
	ctx := context.Background()
	svc := NewSMSLogService(memory.NewStore(), 10, nil, nil)

	entry, created, err := svc.Ingest(ctx, IngestInput{
		SourceID: "<msg-1@forwarder>",
		Subject:  "SMS from +15550102000",
		Raw:      "From: +15550102000\nDate: 2024-03-05 14:22:10\nMessage: Your code is 482913",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ParseStatusParsed, entry.ParseStatus)
	assert.Equal(t, "+15550102000", entry.Sender)
	assert.Equal(t, "Your code is 482913", entry.Content)
	require.NotNil(t, entry.SentAt)

	again, created, err := svc.Ingest(ctx, IngestInput{SourceID: "<msg-1@forwarder>", Raw: "something else"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, entry.ID, again.ID)
	assert.Equal(t, "Your code is 482913", again.Content)
}

func TestSMSLogService_IngestUnparseable(t *testing.T) {
	ctx := context.Background()
	svc := NewSMSLogService(memory.NewStore(), 10, nil, nil)

	raw := "just a note without structure"
	entry, created, err := svc.Ingest(ctx, IngestInput{SourceID: "m-2", Raw: raw})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ParseStatusFailed, entry.ParseStatus)
	assert.NotEmpty(t, entry.ParseError)
	assert.Equal(t, raw, entry.RawText)

	got, err := svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, raw, got.RawText)

	_, _, err = svc.Ingest(ctx, IngestInput{SourceID: "m-3", Raw: "   "})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestSMSLogService_List(t *testing.T) {
	ctx := context.Background()
	svc := NewSMSLogService(memory.NewStore(), 2, nil, nil)

	base := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	bodies := []string{
		"From: BANK\nMessage: balance changed",
		"From: SHOP\nMessage: parcel shipped",
		"From: BANK\nMessage: login code 1111",
	}
	for i, raw := range bodies {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		_, _, err := svc.Ingest(ctx, IngestInput{Raw: raw})
		require.NoError(t, err)
	}

	logs, err := svc.List(ctx, domain.SMSLogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "login code 1111", logs[0].Content)

	logs, err = svc.List(ctx, domain.SMSLogFilter{Sender: "bank", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = svc.List(ctx, domain.SMSLogFilter{Query: "PARCEL", Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "SHOP", logs[0].Sender)
}
