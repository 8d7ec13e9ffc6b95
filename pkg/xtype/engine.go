package xtype

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultRelationCacheSize bounds the memoized relation table.
const DefaultRelationCacheSize = 4096

// Engine answers relation, resolution and flattening queries over the
// types of one arena and universe. It is safe for concurrent use.
type Engine struct {
	arena    Arena
	universe *Universe
	sink     Sink
	linker   Linker
	caps     Capabilities
	logger   *slog.Logger

	relations *lru.Cache[relKey, Relation]

	infoMu sync.RWMutex
	infos  map[Handle]*TypeInfo
	flight singleflight.Group

	varianceMu sync.Mutex
	variance   map[varianceKey]variance
}

type Option func(*Engine)

// WithSink sets where diagnostics are reported.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLinker sets the conditional-inclusion evaluator.
func WithLinker(l Linker) Option {
	return func(e *Engine) { e.linker = l }
}

func WithCapabilities(c Capabilities) Option {
	return func(e *Engine) { e.caps = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRelationCacheSize bounds the relation memo table.
func WithRelationCacheSize(n int) Option {
	return func(e *Engine) {
		cache, err := lru.New[relKey, Relation](n)
		if err != nil {
			panic(err)
		}
		e.relations = cache
	}
}

func New(a Arena, u *Universe, opts ...Option) *Engine {
	if a == nil || u == nil {
		panic("xtype: engine requires an arena and a universe")
	}
	e := &Engine{
		arena:    a,
		universe: u,
		sink:     Discard,
		linker:   AllPresent{},
		caps:     CapabilityMap{},
		logger:   slog.Default(),
		infos:    map[Handle]*TypeInfo{},
		variance: map[varianceKey]variance{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.relations == nil {
		WithRelationCacheSize(DefaultRelationCacheSize)(e)
	}
	return e
}

func (e *Engine) Arena() Arena        { return e.arena }
func (e *Engine) Universe() *Universe { return e.universe }

func (e *Engine) node(h Handle) Node {
	if h == NoHandle {
		panic("xtype: operation on a missing type")
	}
	return e.arena.Lookup(h)
}

// report records a diagnostic against the TypeInfo being built, or sends
// it straight to the sink outside of any build. Recorded diagnostics reach
// the sink when their TypeInfo is published to the cache, and are dropped
// with a provisional build.
func (e *Engine) report(s *session, sev Severity, code, ctx, format string, args ...any) {
	d := Diagnostic{Severity: sev, Code: code, Context: ctx, Message: fmt.Sprintf(format, args...)}
	if s != nil && len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		s.pending[top] = append(s.pending[top], d)
		return
	}
	e.emit(d)
}

func (e *Engine) emit(ds ...Diagnostic) {
	for _, d := range ds {
		e.logger.Debug("diagnostic", "code", d.Code, "context", d.Context, "message", d.Message)
		e.sink.Report(d)
	}
}

type relKey struct {
	left, right Handle
}

// session carries the state of one top-level request through the
// recursion: the in-progress markers for relations and TypeInfo builds,
// and the nodes whose TypeInfo had to be deferred.
type session struct {
	// relating maps the relations in progress to the order they started.
	relating map[relKey]int
	started  int
	// cycles counts re-entrant relation requests; results computed while
	// the count changed depend on an assumption and are not memoized.
	cycles int
	// floor is the earliest-started relation re-entered since the current
	// TypeInfo build began.
	floor int

	building map[Handle]bool
	deferred []Handle
	// local holds TypeInfo finished during this request, complete or not.
	local map[Handle]*TypeInfo
	// assumed marks the local TypeInfo that depend on an assumed relation.
	assumed map[Handle]bool
	// prior holds the results of the previous pass when deferred nodes are
	// being completed; they stand in for re-entrant requests.
	prior map[Handle]*TypeInfo
	// placeholders counts incomplete results handed to re-entrant requests.
	placeholders int
	// walking holds the classes whose contributions are being walked.
	walking map[ClassID]bool
	depth   int

	// stack holds the nodes being built, innermost last, and pending the
	// diagnostics raised by each build.
	stack   []Handle
	pending map[Handle][]Diagnostic
}

func newSession() *session {
	return &session{
		relating: map[relKey]int{},
		floor:    math.MaxInt,
		building: map[Handle]bool{},
		local:    map[Handle]*TypeInfo{},
		assumed:  map[Handle]bool{},
		walking:  map[ClassID]bool{},
		pending:  map[Handle][]Diagnostic{},
	}
}

func (s *session) deferNode(h Handle) {
	for _, d := range s.deferred {
		if d == h {
			return
		}
	}
	s.deferred = append(s.deferred, h)
}
