package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry records one state-changing request.
type Entry struct {
	ID            string
	Actor         string
	PrincipalType string
	Action        string
	ResourceType  string
	ResourceID    string
	RobotID       string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ZapLogger writes entries to a structured log. Used when no database is configured.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger; nil falls back to a no-op logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// Log emits the entry at info level.
func (l *ZapLogger) Log(_ context.Context, entry Entry) error {
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	l.logger.Info(entry.Action,
		zap.String("actor", entry.Actor),
		zap.String("principal_type", entry.PrincipalType),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
		zap.String("robot_id", entry.RobotID),
		zap.String("payload_digest", entry.PayloadDigest),
		zap.String("ip", entry.IP),
	)
	return nil
}
