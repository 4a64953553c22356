package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Graylog2/go-gelf/gelf"
)

// Syslog severities used by the GELF wire format.
const (
	gelfLevelError   int32 = 3
	gelfLevelWarning int32 = 4
	gelfLevelInfo    int32 = 6
	gelfLevelDebug   int32 = 7
)

// gelfWriter is the subset of gelf.Writer the handler needs.
// Tests substitute a recorder so no UDP socket is opened.
type gelfWriter interface {
	WriteMessage(*gelf.Message) error
}

// GelfHandler is a slog.Handler that forwards records to a Graylog
// server in GELF format. Attributes become additional fields with the
// "_" prefix the format requires; group names join the field name with
// dots.
type GelfHandler struct {
	writer gelfWriter
	level  slog.Level
	host   string
	attrs  []slog.Attr
	groups []string
}

// NewGelfHandler dials the Graylog endpoint over UDP and returns a
// handler that forwards records at or above the given level.
func NewGelfHandler(address string, level slog.Level) (*GelfHandler, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("error dialing graylog endpoint %s: %w", address, err)
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GelfHandler{writer: w, level: level, host: host}, nil
}

// Enabled reports whether the record level meets the handler threshold.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle converts the record to a GELF message and writes it.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	return h.writer.WriteMessage(h.message(r))
}

// WithAttrs returns a handler whose messages carry the given attributes.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return h2
}

// WithGroup returns a handler that qualifies subsequent attribute keys
// with the group name.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *GelfHandler) clone() *GelfHandler {
	return &GelfHandler{
		writer: h.writer,
		level:  h.level,
		host:   h.host,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

// qualify prefixes an attribute key with the active group path.
func (h *GelfHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// message builds the GELF representation of a record.
func (h *GelfHandler) message(r slog.Record) *gelf.Message {
	extra := make(map[string]interface{}, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		addGelfField(extra, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		addGelfField(extra, prefix, a)
		return true
	})
	return &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    gelfLevel(r.Level),
		Extra:    extra,
	}
}

// addGelfField flattens an attribute into the extra-field map, recursing
// through group values.
func addGelfField(extra map[string]interface{}, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if prefix != "" {
		key = prefix
	}
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			addGelfField(extra, key, ga)
		}
		return
	}
	if key == "" {
		return
	}
	extra["_"+key] = v.Any()
}

// gelfLevel maps slog levels onto syslog severities.
func gelfLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return gelfLevelError
	case l >= slog.LevelWarn:
		return gelfLevelWarning
	case l >= slog.LevelInfo:
		return gelfLevelInfo
	default:
		return gelfLevelDebug
	}
}
