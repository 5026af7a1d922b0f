package delta

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/thaitype/monguard-sub000/internal/dao/fields"
)

// ArrayHandling controls how array values are diffed.
type ArrayHandling int

const (
	// ArrayDiff compares arrays element by element, by index.
	ArrayDiff ArrayHandling = iota
	// ArrayReplace records the whole array as a single opaque change.
	ArrayReplace
)

const (
	DefaultMaxDepth         = 3
	DefaultArrayDiffMaxSize = 20
)

// DefaultBlacklist lists the infrastructure fields that are excluded from
// delta output. Soft-delete fields are always reported regardless of this
// list, see Options.blacklisted.
func DefaultBlacklist() []string {
	return []string{fields.FieldVersion, fields.FieldUpdatedAt, fields.FieldUpdatedBy}
}

// Options fully specifies a Computer. There are no shared mutable defaults;
// NewComputer copies what it needs.
type Options struct {
	MaxDepth         int
	ArrayHandling    ArrayHandling
	ArrayDiffMaxSize int
	Blacklist        []string
}

// DefaultOptions returns the options used when a caller passes the zero value.
func DefaultOptions() Options {
	return Options{
		MaxDepth:         DefaultMaxDepth,
		ArrayHandling:    ArrayDiff,
		ArrayDiffMaxSize: DefaultArrayDiffMaxSize,
		Blacklist:        DefaultBlacklist(),
	}
}

// Change records the old and new value at a single field path. Old and New
// serialize even when nil: a field set to null must stay distinguishable from
// a field that was absent. FullDocument marks paths whose value was recorded
// as an opaque whole (depth ceiling, oversized array, or replace-mode array)
// instead of being recursed into.
type Change struct {
	Old          interface{} `bson:"old" json:"old"`
	New          interface{} `bson:"new" json:"new"`
	FullDocument bool        `bson:"fullDocument,omitempty" json:"fullDocument,omitempty"`
}

// Result is the output of a single diff computation.
type Result struct {
	HasChanges bool
	Changes    map[string]Change
}

// Computer computes structural diffs between two document snapshots.
// It is pure and safe for concurrent use.
type Computer struct {
	opts Options
}

// NewComputer builds a Computer, filling in defaults for unset options.
func NewComputer(opts Options) *Computer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.ArrayDiffMaxSize <= 0 {
		opts.ArrayDiffMaxSize = DefaultArrayDiffMaxSize
	}
	if opts.Blacklist == nil {
		opts.Blacklist = DefaultBlacklist()
	}
	return &Computer{opts: opts}
}

type workItem struct {
	path   string
	before interface{}
	after  interface{}
	depth  int
}

// Compute diffs two document snapshots. A nil before is treated as a creation
// and a nil after as a deletion, each yielding a single root entry. The walk
// is iterative and guarded against self-referential input.
func (c *Computer) Compute(before, after map[string]interface{}) Result {
	changes := make(map[string]Change)

	if before == nil && after == nil {
		return Result{HasChanges: false, Changes: changes}
	}
	if before == nil {
		changes[""] = Change{Old: nil, New: after}
		return Result{HasChanges: true, Changes: changes}
	}
	if after == nil {
		changes[""] = Change{Old: before, New: nil}
		return Result{HasChanges: true, Changes: changes}
	}

	visited := make(map[[2]uintptr]bool)
	work := []workItem{{path: "", before: before, after: after, depth: 0}}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		bm, bok := asMap(item.before)
		am, aok := asMap(item.after)
		if !bok || !aok {
			continue
		}

		// A self-referential pair has already been walked; descending again
		// would loop forever.
		key := [2]uintptr{pointerOf(item.before), pointerOf(item.after)}
		if key[0] != 0 && visited[key] {
			continue
		}
		visited[key] = true

		for _, k := range unionKeys(bm, am) {
			path := k
			if item.path != "" {
				path = item.path + "." + k
			}
			if c.blacklisted(k, path) {
				continue
			}

			bv := bm[k]
			av := am[k]
			childDepth := item.depth + 1

			switch {
			case isMap(bv) && isMap(av):
				if childDepth >= c.opts.MaxDepth {
					if !valueEqual(bv, av) {
						changes[path] = Change{Old: bv, New: av, FullDocument: true}
					}
					continue
				}
				work = append(work, workItem{path: path, before: bv, after: av, depth: childDepth})

			case isArray(bv) && isArray(av):
				c.diffArray(changes, &work, path, bv, av, childDepth)

			default:
				if !valueEqual(bv, av) {
					changes[path] = Change{Old: bv, New: av}
				}
			}
		}
	}

	return Result{HasChanges: len(changes) > 0, Changes: changes}
}

// diffArray applies the configured array policy: whole-array capture for
// replace mode or oversized arrays, index-by-index comparison otherwise.
func (c *Computer) diffArray(changes map[string]Change, work *[]workItem, path string, bv, av interface{}, depth int) {
	bs := asSlice(bv)
	as := asSlice(av)

	if c.opts.ArrayHandling == ArrayReplace ||
		len(bs) > c.opts.ArrayDiffMaxSize || len(as) > c.opts.ArrayDiffMaxSize {
		if !valueEqual(bv, av) {
			changes[path] = Change{Old: bv, New: av, FullDocument: true}
		}
		return
	}

	n := len(bs)
	if len(as) > n {
		n = len(as)
	}
	for i := 0; i < n; i++ {
		var be, ae interface{}
		if i < len(bs) {
			be = bs[i]
		}
		if i < len(as) {
			ae = as[i]
		}
		elemPath := path + "." + strconv.Itoa(i)

		switch {
		case isMap(be) && isMap(ae):
			if depth >= c.opts.MaxDepth {
				if !valueEqual(be, ae) {
					changes[elemPath] = Change{Old: be, New: ae, FullDocument: true}
				}
				continue
			}
			*work = append(*work, workItem{path: elemPath, before: be, after: ae, depth: depth + 1})
		default:
			if !valueEqual(be, ae) {
				changes[elemPath] = Change{Old: be, New: ae}
			}
		}
	}
}

// blacklisted reports whether the given key/path is excluded from output.
// Patterns match by exact key name, full dotted path, dotted suffix, or a
// "prefix.*" wildcard. Soft-delete fields are always reported.
func (c *Computer) blacklisted(key, path string) bool {
	if key == fields.FieldDeletedAt || key == fields.FieldDeletedBy {
		return false
	}
	for _, p := range c.opts.Blacklist {
		if p == key || p == path {
			return true
		}
		if strings.HasSuffix(path, "."+p) {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, ".*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+".") {
				return true
			}
		}
	}
	return false
}

func unionKeys(a, b map[string]interface{}) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func isMap(v interface{}) bool {
	_, ok := asMap(v)
	return ok
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	}
	return nil, false
}

func isArray(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}

func asSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func pointerOf(v interface{}) uintptr {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		return rv.Pointer()
	}
	return 0
}

// valueEqual compares two values, treating time values (time.Time and bson
// datetimes) by instant and numeric values by magnitude regardless of their
// decoded width.
func valueEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if at, aok := asTime(a); aok {
		bt, bok := asTime(b)
		return bok && at.Equal(bt)
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
