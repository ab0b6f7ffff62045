package smtp

import (
	"context"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"maildash/backend/internal/config"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/pool"
	"maildash/backend/internal/service"
)

const (
	defaultMaxMessageBytes = 1 << 20
	ingestTimeout          = 30 * time.Second
)

// Ingester 保存转发的短信
type Ingester interface {
	Ingest(ctx context.Context, in service.IngestInput) (*domain.SMSLog, bool, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收短信转发邮件，不提供中继。配置了接收地址时，其他收件人一律返回 550。
// 解析后的正文交给协程池异步入库，队列满时返回 451 让对方稍后重试。
type Backend struct {
	ingester Ingester
	pool     *pool.WorkerPool
	limiter  *ConnectionLimiter
	allowed  map[string]bool
	maxBytes int64
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend
//
// 参数:
//   - ingester: 短信日志服务
//   - workers: 入库协程池，需由调用方启动和停止
//   - limiter: 连接限流器，可为 nil
//   - ingestAddresses: 允许的收件地址，为空时接受所有收件人
//   - maxBytes: 单封邮件大小上限
//   - log: 日志记录器
func NewBackend(ingester Ingester, workers *pool.WorkerPool, limiter *ConnectionLimiter, ingestAddresses []string, maxBytes int64, log *zap.Logger) *Backend {
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]bool, len(ingestAddresses))
	for _, addr := range ingestAddresses {
		if addr = normalizeAddress(addr); addr != "" {
			allowed[addr] = true
		}
	}
	return &Backend{
		ingester: ingester,
		pool:     workers,
		limiter:  limiter,
		allowed:  allowed,
		maxBytes: maxBytes,
		log:      log,
	}
}

// NewServer 按配置创建 SMTP 服务器
func NewServer(b *Backend, cfg config.SMTPConfig) *gosmtp.Server {
	s := gosmtp.NewServer(b)
	s.Addr = cfg.BindAddr
	s.Domain = cfg.Domain
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second
	s.MaxMessageBytes = b.maxBytes
	s.MaxRecipients = 10
	return s
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if strings.Count(addr, "@") != 1 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if len(s.backend.allowed) > 0 && !s.backend.allowed[addr] {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		s.backend.log.Warn("rejecting unparseable mail", zap.String("from", s.fromAddress), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message",
		}
	}
	if parsed.Text == "" {
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "empty message body",
		}
	}

	input := service.IngestInput{
		SourceID: parsed.MessageID,
		Subject:  parsed.Subject,
		Raw:      parsed.Text,
	}
	from := s.fromAddress
	queued := s.backend.pool.TrySubmit(func(ctx context.Context) {
		s.backend.ingest(ctx, from, input)
	})
	if !queued {
		s.backend.log.Warn("ingest queue full, deferring mail", zap.String("from", from))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 1},
			Message:      "ingest queue full, try again later",
		}
	}
	return nil
}

func (b *Backend) ingest(ctx context.Context, from string, input service.IngestInput) {
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	entry, created, err := b.ingester.Ingest(ctx, input)
	if err != nil {
		b.log.Error("sms ingest failed",
			zap.String("from", from),
			zap.String("source_id", input.SourceID),
			zap.Error(err))
		return
	}
	b.log.Info("sms mail ingested",
		zap.String("from", from),
		zap.String("id", entry.ID),
		zap.String("parse_status", string(entry.ParseStatus)),
		zap.Bool("created", created))
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
