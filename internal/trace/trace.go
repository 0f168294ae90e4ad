// Package trace records the ordered diagnostic steps taken while serving a
// single request. A Trace is owned by one request and is discarded with it.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// TimeLayout is the time-of-day format used when entries are serialized.
const TimeLayout = "15:04:05.000"

// DataKind tags the variant held by a Data value.
type DataKind int

const (
	KindText DataKind = iota
	KindValue
)

// Data is either free text or a structured JSON value.
type Data struct {
	kind  DataKind
	text  string
	value json.RawMessage
}

// Text wraps a plain string.
func Text(s string) Data {
	return Data{kind: KindText, text: s}
}

// JSON wraps an already encoded JSON document. Invalid JSON is kept as text.
func JSON(raw []byte) Data {
	if !json.Valid(raw) {
		return Text(string(raw))
	}
	return Data{kind: KindValue, value: append(json.RawMessage(nil), raw...)}
}

// Value encodes v as a structured value.
func Value(v any) Data {
	raw, err := json.Marshal(v)
	if err != nil {
		return Text(fmt.Sprint(v))
	}
	return Data{kind: KindValue, value: raw}
}

// Kind reports which variant d holds.
func (d Data) Kind() DataKind { return d.kind }

// Text returns the text variant, or "" for a structured value.
func (d Data) Text() string { return d.text }

// Value returns the structured variant, or nil for text.
func (d Data) Value() json.RawMessage { return d.value }

// String renders d for log output.
func (d Data) String() string {
	if d.kind == KindValue {
		return string(d.value)
	}
	return d.text
}

func (d Data) MarshalJSON() ([]byte, error) {
	if d.kind == KindValue {
		return d.value, nil
	}
	return json.Marshal(d.text)
}

func (d *Data) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*d = Text(s)
		return nil
	}
	*d = JSON(trimmed)
	return nil
}

// Entry is one recorded step.
type Entry struct {
	Time time.Time
	Step string
	Data Data
}

type entryJSON struct {
	Time string `json:"time"`
	Step string `json:"step"`
	Data Data   `json:"data"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Time: e.Time.UTC().Format(TimeLayout),
		Step: e.Step,
		Data: e.Data,
	})
}

// Trace is an append-only, ordered list of entries. It has a single writer
// and is not safe for concurrent use.
type Trace struct {
	entries []Entry
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Trace.
type Option func(*Trace)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Trace) {
		t.now = now
	}
}

// New creates an empty trace. Every append is mirrored to logger at debug level.
func New(logger *slog.Logger, opts ...Option) *Trace {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trace{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append records a step. It is a no-op on a nil Trace.
func (t *Trace) Append(step string, data Data) {
	if t == nil {
		return
	}
	t.entries = append(t.entries, Entry{Time: t.now(), Step: step, Data: data})
	t.logger.Debug("trace", slog.String("step", step), slog.String("data", data.String()))
}

// Snapshot returns a copy of the entries recorded so far.
func (t *Trace) Snapshot() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
