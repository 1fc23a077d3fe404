package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const logTimestampLayout = "2006-01-02 15:04:05"

// consoleHandler writes one logfmt-style line per record:
//
//	2026-01-02 15:04:05 INFO pipeline: [exp/train] stage started epoch=3
//
// Component, experiment, and stage are lifted out of the attributes into the
// line prefix. The run id is only printed at debug level.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool

	header consoleHeader
	group  string
	// attrs holds the rendered " key=value" pairs from WithAttrs.
	attrs string
}

type consoleHeader struct {
	component  string
	experiment string
	stage      string
	runID      string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	header := h.header
	var pairs strings.Builder
	pairs.WriteString(h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&pairs, &header, h.group, attr)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var line strings.Builder
	line.Grow(96 + pairs.Len())
	line.WriteString(ts.In(time.Local).Format(logTimestampLayout))
	line.WriteByte(' ')
	line.WriteString(levelLabel(record.Level))
	if header.component != "" {
		line.WriteByte(' ')
		line.WriteString(header.component)
		line.WriteByte(':')
	}
	if subject := formatSubject(header.experiment, header.stage); subject != "" {
		line.WriteString(" [")
		line.WriteString(subject)
		line.WriteByte(']')
	}
	line.WriteByte(' ')
	if msg := strings.TrimSpace(record.Message); msg != "" {
		line.WriteString(msg)
	} else {
		line.WriteString("(no message)")
	}
	line.WriteString(pairs.String())
	if header.runID != "" && record.Level < slog.LevelInfo {
		line.WriteString(" " + FieldRunID + "=" + header.runID)
	}
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	var pairs strings.Builder
	pairs.WriteString(h.attrs)
	for _, attr := range attrs {
		appendAttr(&pairs, &clone.header, h.group, attr)
	}
	clone.attrs = pairs.String()
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

// appendAttr renders attr as " key=value", lifting header fields when they
// appear outside any group.
func appendAttr(b *strings.Builder, header *consoleHeader, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := joinKey(group, attr.Key)
		for _, a := range attr.Value.Group() {
			appendAttr(b, header, inner, a)
		}
		return
	}
	if group == "" {
		switch attr.Key {
		case FieldComponent:
			header.component = attr.Value.String()
			return
		case FieldExperiment:
			header.experiment = attr.Value.String()
			return
		case FieldStage:
			header.stage = attr.Value.String()
			return
		case FieldRunID:
			header.runID = attr.Value.String()
			return
		}
	}
	b.WriteByte(' ')
	b.WriteString(joinKey(group, attr.Key))
	b.WriteByte('=')
	b.WriteString(formatValue(attr.Value))
}

func joinKey(group, key string) string {
	switch {
	case group == "":
		return key
	case key == "":
		return group
	default:
		return group + "." + key
	}
}

func formatSubject(experiment, stage string) string {
	experiment = strings.TrimSpace(experiment)
	stage = strings.TrimSpace(stage)
	switch {
	case experiment != "" && stage != "":
		return experiment + "/" + stage
	case experiment != "":
		return experiment
	default:
		return stage
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', 6, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().In(time.Local).Format(logTimestampLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '"' || r == '=' || !unicode.IsPrint(r) }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
