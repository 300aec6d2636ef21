package datapush

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"time"

	"BikeShareDashboard/src/config"
	"BikeShareDashboard/src/storage"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"
)

// 常量定义
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
)

// ErrNotConfigured send_email 未配置
var ErrNotConfigured = errors.New("未配置邮件服务器或收件人")

// Sender 邮件发送方式, 测试时替换
type Sender interface {
	Send(e *email.Email) error
}

// tlsSender 显式 TLS 发送
type tlsSender struct {
	addr string
	auth smtp.Auth
	tls  *tls.Config
}

func (s *tlsSender) Send(e *email.Email) error {
	return e.SendWithTLS(s.addr, s.auth, s.tls)
}

// ReportMailer 把导出的报表作为附件发送
type ReportMailer struct {
	From     string
	To       []string
	Subject  string
	Sender   Sender
	Times    int
	Interval time.Duration
	logger   *storage.Logger
}

// NewReportMailer 根据 send_email 配置创建
func NewReportMailer(c *config.Config, logger *storage.Logger) (*ReportMailer, error) {
	if c.SendEmail.Server == "" || len(c.SendEmail.To) == 0 {
		return nil, ErrNotConfigured
	}

	// 确保服务器地址包含端口
	smtpAddr := c.SendEmail.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465" // 默认 SSL 端口
	}
	host := strings.Split(smtpAddr, ":")[0]

	return &ReportMailer{
		From:    c.SendEmail.Username,
		To:      c.SendEmail.To,
		Subject: c.SendEmail.Subject,
		Sender: &tlsSender{
			addr: smtpAddr,
			auth: smtp.PlainAuth("", c.SendEmail.Username, c.SendEmail.Password, host),
			tls:  &tls.Config{ServerName: host},
		},
		Times:    RETRY_TIMES,
		Interval: RETRY_INTERVAL,
		logger:   logger,
	}, nil
}

// Send 发送一封带附件的邮件, 失败按 Times/Interval 重试
func (m *ReportMailer) Send(ctx context.Context, attachment, body string) error {
	e := email.NewEmail()
	e.From = fmt.Sprintf("Bike Share Dashboard <%s>", m.From)
	e.To = m.To
	e.Subject = m.Subject
	e.Text = []byte(body)

	if attachment != "" {
		if _, err := os.Stat(attachment); err != nil {
			return fmt.Errorf("附件文件不存在: %w", err)
		}
		if _, err := e.AttachFile(attachment); err != nil {
			return fmt.Errorf("附件添加失败: %w", err)
		}
	}

	attempt := 0
	err := retry(ctx, func() error {
		attempt++
		err := m.Sender.Send(e)
		if err != nil && m.logger != nil {
			m.logger.Warning("邮件发送失败", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}, m.Times, m.Interval)
	if err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Info("邮件发送成功", zap.Strings("to", m.To), zap.String("attachment", attachment))
	}
	return nil
}

// 重试函数
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	if times <= 0 {
		times = 1
	}

	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("重试被取消: %w", ctx.Err())
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
