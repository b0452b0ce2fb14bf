package scheduler

import (
	"context"
	"fmt"

	"github.com/okian/tagcaption/pkg/logger"
)

// gocronLogger forwards gocron's key/value logs into logger.Logger.
type gocronLogger struct {
	l logger.Logger
}

func (g gocronLogger) Debug(msg string, args ...any) {
	g.l.Debug(context.Background(), msg, toFields(args)...)
}

func (g gocronLogger) Info(msg string, args ...any) {
	g.l.Info(context.Background(), msg, toFields(args)...)
}

func (g gocronLogger) Warn(msg string, args ...any) {
	g.l.Warn(context.Background(), msg, toFields(args)...)
}

func (g gocronLogger) Error(msg string, args ...any) {
	g.l.Error(context.Background(), msg, toFields(args)...)
}

// toFields pairs up args as key, value. A trailing key without value or a
// non-string key is kept under a positional name.
func toFields(args []any) []logger.Field {
	fields := make([]logger.Field, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			fields = append(fields, logger.Any(fmt.Sprintf("arg%d", i), args[i]))
			i--
			continue
		}
		fields = append(fields, logger.Any(key, args[i+1]))
	}
	return fields
}
