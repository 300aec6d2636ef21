package datapush

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/storage"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	failures int
	sent     []*email.Email
}

func (f *fakeSender) Send(e *email.Email) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp: 421 try again later")
	}
	f.sent = append(f.sent, e)
	return nil
}

func newMailer(t *testing.T, sender Sender) *ReportMailer {
	t.Helper()
	cfg, _ := config.Default()
	cfg.SendEmail.Server = "smtp.example.com"
	cfg.SendEmail.Username = "report@example.com"
	cfg.SendEmail.To = []string{"ops@example.com"}

	m, err := NewReportMailer(cfg, storage.NewNopLogger())
	require.NoError(t, err)
	m.Sender = sender
	m.Interval = time.Millisecond
	return m
}

func TestNewReportMailer(t *testing.T) {
	cfg, _ := config.Default()
	_, err := NewReportMailer(cfg, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg.SendEmail.Server = "smtp.example.com"
	cfg.SendEmail.To = []string{"ops@example.com"}
	m, err := NewReportMailer(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:465", m.Sender.(*tlsSender).addr)
	assert.Equal(t, RETRY_TIMES, m.Times)
	assert.Equal(t, "Bike Share Report", m.Subject)
}

func TestSendRetries(t *testing.T) {
	attachment := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, os.WriteFile(attachment, []byte("xlsx"), 0644))

	sender := &fakeSender{failures: 2}
	m := newMailer(t, sender)

	require.NoError(t, m.Send(context.Background(), attachment, "daily report"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ops@example.com"}, sender.sent[0].To)
	assert.Equal(t, "daily report", string(sender.sent[0].Text))
	require.Len(t, sender.sent[0].Attachments, 1)
	assert.Equal(t, "report.xlsx", sender.sent[0].Attachments[0].Filename)
}

func TestSendGivesUp(t *testing.T) {
	sender := &fakeSender{failures: 10}
	m := newMailer(t, sender)
	m.Times = 3

	err := m.Send(context.Background(), "", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "重试 3 次后失败")
	assert.Equal(t, 7, sender.failures)
}

func TestSendMissingAttachment(t *testing.T) {
	m := newMailer(t, &fakeSender{})
	assert.Error(t, m.Send(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"), "body"))
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, func() error {
		calls++
		return errors.New("fail")
	}, 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
