package snapshot

import (
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/heapsnap/heap"
)

var log = commonlog.GetLogger("heapsnap.snapshot")

// Counts summarizes the tables of one snapshot.
type Counts struct {
	Strings   int `json:"strings" yaml:"strings" cbor:"1,keyasint"`
	Shapes    int `json:"shapes" yaml:"shapes" cbor:"2,keyasint"`
	Contexts  int `json:"contexts" yaml:"contexts" cbor:"3,keyasint"`
	Functions int `json:"functions" yaml:"functions" cbor:"4,keyasint"`
	Arrays    int `json:"arrays" yaml:"arrays" cbor:"5,keyasint"`
	Objects   int `json:"objects" yaml:"objects" cbor:"6,keyasint"`
	Classes   int `json:"classes" yaml:"classes" cbor:"7,keyasint"`
	Exports   int `json:"exports" yaml:"exports" cbor:"8,keyasint"`
}

// session is the per-run state shared by the serializer's passes: one
// identity catalog per entity kind, plus an id and clock for logging.
type session struct {
	id      string
	started time.Time
	log     commonlog.Logger

	strings   *Catalog[string]
	shapes    *Catalog[*heap.Shape]
	contexts  *Catalog[*heap.Context]
	functions *Catalog[*heap.Function]
	classes   *Catalog[*heap.Function]
	arrays    *Catalog[*heap.Array]
	objects   *Catalog[*heap.Object]
}

func newSession(opts Options) *session {
	max := opts.MaxItemCount
	return &session{
		id:        uuid.NewString(),
		started:   time.Now(),
		log:       opts.Logger,
		strings:   NewCatalog[string](max),
		shapes:    NewCatalog[*heap.Shape](max),
		contexts:  NewCatalog[*heap.Context](max),
		functions: NewCatalog[*heap.Function](max),
		classes:   NewCatalog[*heap.Function](max),
		arrays:    NewCatalog[*heap.Array](max),
		objects:   NewCatalog[*heap.Object](max),
	}
}

func (s *session) counts(exports int) Counts {
	return Counts{
		Strings:   s.strings.Len(),
		Shapes:    s.shapes.Len(),
		Contexts:  s.contexts.Len(),
		Functions: s.functions.Len(),
		Arrays:    s.arrays.Len(),
		Objects:   s.objects.Len(),
		Classes:   s.classes.Len(),
		Exports:   exports,
	}
}

func (s *session) elapsed() time.Duration {
	return time.Since(s.started)
}
