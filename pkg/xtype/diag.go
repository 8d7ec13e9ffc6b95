package xtype

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrUnresolved is returned by any computation that touches an
	// Unresolved placeholder.
	ErrUnresolved = errors.New("type contains unresolved references")
	// ErrNoSingleClass is returned when an operation needs a single
	// defining class and the type is relational or formal.
	ErrNoSingleClass = errors.New("type does not resolve to a single class")
)

type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("Severity(%d)", s)
}

func (s Severity) level() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	}
	return slog.LevelError
}

// Diagnostic codes reported while flattening types.
const (
	CodeUnknownClass              = "unknown-class"
	CodeContributionKind          = "contribution-kind"
	CodeContributionCycle         = "contribution-cycle"
	CodeTypeParamConflict         = "type-param-conflict"
	CodeDelegateMissing           = "delegate-missing"
	CodePropertyTypeParamConflict = "property-type-param-conflict"
	CodePropertyTypeParamMix      = "property-type-param-mix"
	CodePropertyTypeMismatch      = "property-type-mismatch"
	CodePropertyConstant          = "property-constant"
	CodePropertyStructMix         = "property-struct-mix"
	CodePropertyPrivateMix        = "property-private-mix"
	CodeMethodAmbiguous           = "method-ambiguous"
)

// Diagnostic is a recoverable semantic conflict found while flattening a
// type. The engine proceeds past it with a fixed fallback.
type Diagnostic struct {
	Severity Severity
	Code     string
	// Context names what was being built, such as a type or signature.
	Context string
	Message string
}

func (d Diagnostic) Error() string {
	if d.Context == "" {
		return fmt.Sprintf("%s [%s]: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Code, d.Context, d.Message)
}

// Sink receives diagnostics.
type Sink interface {
	Report(Diagnostic)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Collector accumulates diagnostics and doubles as an error.
type Collector struct {
	mu          sync.Mutex
	Diagnostics []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.Diagnostics = append(c.Diagnostics, d)
	c.mu.Unlock()
}

// Codes returns the code of every diagnostic, in report order.
func (c *Collector) Codes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, len(c.Diagnostics))
	for i, d := range c.Diagnostics {
		codes[i] = d.Code
	}
	return codes
}

func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (c *Collector) Unwrap() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]error, len(c.Diagnostics))
	for i, d := range c.Diagnostics {
		errs[i] = d
	}
	return errs
}

func (c *Collector) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch len(c.Diagnostics) {
	case 0:
		return "no diagnostics"
	case 1:
		return c.Diagnostics[0].Error()
	}
	var msgs []string
	for _, d := range c.Diagnostics {
		msgs = append(msgs, d.Error())
	}
	return fmt.Sprintf("%d diagnostics:\n%s", len(c.Diagnostics), strings.Join(msgs, "\n"))
}

// LogSink writes diagnostics to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Report(d Diagnostic) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), d.Severity.level(), d.Message,
		"code", d.Code,
		"context", d.Context)
}

// Tee reports to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			s.Report(d)
		}
	})
}
