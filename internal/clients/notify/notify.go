// Package notify implements interfaces.Notifications by logging: the
// real delivery channel (email, Slack, in-app) is an external collaborator
// out of scope for this queue.
package notify

import (
	"context"
	"fmt"

	"github.com/domainpress/pipeline/internal/common"
)

// LogNotifications records a notification as a structured log line.
type LogNotifications struct {
	logger *common.Logger
}

// NewLogNotifications builds a LogNotifications over logger.
func NewLogNotifications(logger *common.Logger) *LogNotifications {
	return &LogNotifications{logger: logger}
}

func (n *LogNotifications) Create(ctx context.Context, kind, message string, attributes map[string]any) error {
	evt := n.logger.Info().Str("kind", kind)
	for k, v := range attributes {
		evt = evt.Str(k, fmtAttr(v))
	}
	evt.Msg(message)
	return nil
}

func fmtAttr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
