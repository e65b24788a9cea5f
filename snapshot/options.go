package snapshot

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/heapsnap/heap"
)

// MaxProperties is the default limit on properties per shape.
const MaxProperties = heap.DefaultMaxFastProperties

// Evaluator is the script collaborator. Evaluate runs an export
// expression during TakeSnapshot; Run executes the program suffix that may
// trail a snapshot.
type Evaluator interface {
	Evaluate(realm *heap.Realm, expr string) (heap.Value, error)
	Run(realm *heap.Realm, name, source string) error
}

// Options tune a Serializer or Deserializer.
type Options struct {
	MaxItemCount  int
	MaxProperties int

	// ScriptName names the script that trailing program bytes and
	// deserialized functions are attributed to.
	ScriptName string

	Evaluator Evaluator
	Logger    commonlog.Logger
}

// Option configures Options.
type Option func(*Options)

func WithMaxItemCount(n int) Option {
	return func(o *Options) { o.MaxItemCount = n }
}

func WithMaxProperties(n int) Option {
	return func(o *Options) { o.MaxProperties = n }
}

func WithScriptName(name string) Option {
	return func(o *Options) { o.ScriptName = name }
}

func WithEvaluator(e Evaluator) Option {
	return func(o *Options) { o.Evaluator = e }
}

func WithLogger(l commonlog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func newOptions(opts []Option) Options {
	o := Options{
		MaxItemCount:  MaxItemCount,
		MaxProperties: MaxProperties,
		ScriptName:    "web-snapshot",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxItemCount <= 0 || o.MaxItemCount > MaxItemCount {
		o.MaxItemCount = MaxItemCount
	}
	if o.MaxProperties <= 0 {
		o.MaxProperties = MaxProperties
	}
	if o.Logger == nil {
		o.Logger = log
	}
	return o
}
