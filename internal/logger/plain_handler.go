package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// plainHandler writes lines like:
//
//	level=INFO collecting pass targets=3
//
// The message is emitted as raw text without a msg= wrapper, which reads
// better on a terminal than the stock TextHandler output.
type plainHandler struct {
	outputWriter io.Writer
	leveler      slog.Leveler
	includeTime  bool

	// attrs captured by With; groups are flattened into dotted key prefixes.
	prefixAttrs []slog.Attr
	groupPrefix string

	// pointer so handler copies made by With share one writer lock
	mutex *sync.Mutex
}

func newPlainHandler(output io.Writer, level slog.Leveler, includeTime bool) *plainHandler {
	return &plainHandler{
		outputWriter: output,
		leveler:      level,
		includeTime:  includeTime,
		mutex:        &sync.Mutex{},
	}
}

func (handler *plainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.leveler.Level()
}

func (handler *plainHandler) Handle(_ context.Context, record slog.Record) error {
	var buffer bytes.Buffer

	if handler.includeTime && !record.Time.IsZero() {
		buffer.WriteString("time=")
		buffer.WriteString(record.Time.Format(time.RFC3339Nano))
		buffer.WriteByte(' ')
	}

	buffer.WriteString("level=")
	buffer.WriteString(levelName(record.Level))

	if record.Message != "" {
		buffer.WriteByte(' ')
		buffer.WriteString(record.Message)
	}

	for index := range handler.prefixAttrs {
		handler.writeAttr(&buffer, handler.prefixAttrs[index])
	}

	record.Attrs(func(attr slog.Attr) bool {
		handler.writeAttr(&buffer, attr)

		return true
	})

	buffer.WriteByte('\n')

	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	if _, err := handler.outputWriter.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("plain handler write: %w", err)
	}

	return nil
}

func (handler *plainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return handler
	}

	copyHandler := *handler
	copyHandler.prefixAttrs = append(append([]slog.Attr(nil), handler.prefixAttrs...), attrs...)

	return &copyHandler
}

func (handler *plainHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return handler
	}

	copyHandler := *handler
	if copyHandler.groupPrefix != "" {
		copyHandler.groupPrefix += "." + name
	} else {
		copyHandler.groupPrefix = name
	}

	return &copyHandler
}

// writeAttr emits " key=value", flattening groups into dotted keys.
func (handler *plainHandler) writeAttr(buffer *bytes.Buffer, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) || attr.Key == "" {
		return
	}

	key := attr.Key
	if handler.groupPrefix != "" {
		key = handler.groupPrefix + "." + key
	}

	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			child.Key = key + "." + child.Key
			handler.writeAttr(buffer, child)
		}

		return
	}

	buffer.WriteByte(' ')
	buffer.WriteString(key)
	buffer.WriteByte('=')
	writeValue(buffer, attr.Value)
}

func writeValue(buffer *bytes.Buffer, value slog.Value) {
	switch value.Kind() {
	case slog.KindString:
		text := value.String()
		if strings.ContainsAny(text, " \t") {
			buffer.WriteString(strconv.Quote(text))
		} else {
			buffer.WriteString(text)
		}
	case slog.KindInt64:
		buffer.WriteString(strconv.FormatInt(value.Int64(), 10))
	case slog.KindUint64:
		buffer.WriteString(strconv.FormatUint(value.Uint64(), 10))
	case slog.KindFloat64:
		buffer.WriteString(strconv.FormatFloat(value.Float64(), 'g', -1, 64))
	case slog.KindBool:
		buffer.WriteString(strconv.FormatBool(value.Bool()))
	case slog.KindDuration:
		buffer.WriteString(value.Duration().String())
	case slog.KindTime:
		buffer.WriteString(value.Time().Format(time.RFC3339Nano))
	default:
		fmt.Fprint(buffer, value.Any())
	}
}

func levelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
