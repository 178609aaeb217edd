package apihttp

import (
	"encoding/json"
	"net"
	"net/http"

	"go.uber.org/zap"

	"carebot-cloud/internal/audit"
	"carebot-cloud/internal/auth"
)

// Auditor records state-changing requests. Failures are logged, never returned.
type Auditor struct {
	logger audit.Logger
	log    *zap.Logger
}

// NewAuditor wraps an audit logger; a nil logger disables auditing.
func NewAuditor(logger audit.Logger, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{logger: logger, log: log}
}

// Record writes one entry for the request made by p.
func (a *Auditor) Record(r *http.Request, p auth.Principal, action, resourceType, resourceID, robotID string, meta map[string]any) {
	if a == nil || a.logger == nil {
		return
	}
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	err := a.logger.Log(r.Context(), audit.Entry{
		Actor:         p.Subject(),
		PrincipalType: string(p.Kind()),
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		RobotID:       robotID,
		Metadata:      raw,
		IP:            remoteHost(r.RemoteAddr),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		a.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// remoteHost strips the port. RemoteAddr has already been rewritten by the RealIP middleware.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
