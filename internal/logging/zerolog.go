package logging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts zerolog to Logger. Key–value pairs are attached as
// event fields; a trailing key without a value is logged under "!BADKEY",
// matching slog.
type ZerologLogger struct {
	z zerolog.Logger
}

func NewZerologLogger(z zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{z: z}
}

func (l *ZerologLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(l.z.Debug(), msg, args)
}

func (l *ZerologLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log(l.z.Info(), msg, args)
}

func (l *ZerologLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(l.z.Warn(), msg, args)
}

func (l *ZerologLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log(l.z.Error(), msg, args)
}

func (l *ZerologLogger) With(args ...any) Logger {
	zctx := l.z.With()
	for i := 0; i < len(args); i += 2 {
		key, val := pair(args, i)
		zctx = zctx.Interface(key, val)
	}
	return &ZerologLogger{z: zctx.Logger()}
}

func (l *ZerologLogger) log(e *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args); i += 2 {
		key, val := pair(args, i)
		if err, ok := val.(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, val)
	}
	e.Msg(msg)
}

func pair(args []any, i int) (string, any) {
	if i+1 >= len(args) {
		return "!BADKEY", args[i]
	}
	key, ok := args[i].(string)
	if !ok {
		key = fmt.Sprint(args[i])
	}
	return key, args[i+1]
}
