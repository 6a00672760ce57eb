// Package pipeline provides condition-gated, lazily evaluated sequence
// combinators. Every combinator returns a new pipeline value; when its
// condition is false it returns the receiver unchanged and never touches
// its other arguments. Nothing runs until Items is called, and each call
// to Items re-evaluates the source.
package pipeline

import (
	"cmp"
	"sort"
)

// Comparer orders two elements: negative when a sorts before b, zero when
// they tie, positive when a sorts after b.
type Comparer[T any] func(a, b T) int

// By builds a Comparer from a key selector over any ordered key type.
func By[T any, K cmp.Ordered](key func(T) K) Comparer[T] {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

type stage[T any] interface {
	apply([]T) []T
}

type funcStage[T any] struct {
	fn func([]T) []T
}

func (s funcStage[T]) apply(in []T) []T { return s.fn(in) }

type sortKey[T any] struct {
	cmp  Comparer[T]
	desc bool
}

// sortStage holds a primary comparer plus any tie-break comparers added by
// ThenByIf. A single stable sort over the composed chain gives each
// secondary key effect only among elements tied on every earlier key.
type sortStage[T any] struct {
	keys []sortKey[T]
}

func (s sortStage[T]) apply(in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range s.keys {
			c := k.cmp(out[i], out[j])
			if k.desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out
}

// Pipeline is an immutable description of pending sequence transformations.
type Pipeline[T any] struct {
	source func() []T
	stages []stage[T]
}

// From creates a pipeline over a slice. The slice is not copied until a
// stage produces output, so it must not be mutated while the pipeline is
// in use.
func From[T any](items []T) *Pipeline[T] {
	return &Pipeline[T]{source: func() []T { return items }}
}

// FromFunc creates a pipeline whose source is re-invoked on every
// materialization.
func FromFunc[T any](fn func() []T) *Pipeline[T] {
	return &Pipeline[T]{source: fn}
}

// with returns a new pipeline extended by one stage, leaving the receiver
// untouched.
func (p *Pipeline[T]) with(s stage[T]) *Pipeline[T] {
	stages := make([]stage[T], len(p.stages), len(p.stages)+1)
	copy(stages, p.stages)
	return &Pipeline[T]{source: p.source, stages: append(stages, s)}
}

// WhereIf appends a filter stage when cond is true.
func (p *Pipeline[T]) WhereIf(cond bool, pred func(T) bool) *Pipeline[T] {
	if !cond {
		return p
	}
	return p.with(funcStage[T]{fn: func(in []T) []T {
		out := make([]T, 0, len(in))
		for _, v := range in {
			if pred(v) {
				out = append(out, v)
			}
		}
		return out
	}})
}

// OrderByIf appends a sort stage when cond is true. desc reverses the
// comparer's order.
func (p *Pipeline[T]) OrderByIf(cond bool, c Comparer[T], desc bool) *Pipeline[T] {
	if !cond {
		return p
	}
	return p.with(sortStage[T]{keys: []sortKey[T]{{cmp: c, desc: desc}}})
}

// ThenByIf adds a tie-break key to the preceding sort stage when cond is
// true: elements already distinguished keep their order, only ties are
// reordered. Without a preceding sort stage it behaves as OrderByIf.
func (p *Pipeline[T]) ThenByIf(cond bool, c Comparer[T], desc bool) *Pipeline[T] {
	if !cond {
		return p
	}
	if n := len(p.stages); n > 0 {
		if prev, ok := p.stages[n-1].(sortStage[T]); ok {
			keys := make([]sortKey[T], len(prev.keys), len(prev.keys)+1)
			copy(keys, prev.keys)
			stages := make([]stage[T], n)
			copy(stages, p.stages)
			stages[n-1] = sortStage[T]{keys: append(keys, sortKey[T]{cmp: c, desc: desc})}
			return &Pipeline[T]{source: p.source, stages: stages}
		}
	}
	return p.OrderByIf(true, c, desc)
}

// SkipIf appends a stage dropping the first n elements when cond is true.
// Counts outside the valid range clamp, matching slice semantics.
func (p *Pipeline[T]) SkipIf(cond bool, n int) *Pipeline[T] {
	if !cond {
		return p
	}
	return p.with(funcStage[T]{fn: func(in []T) []T {
		if n <= 0 {
			return in
		}
		if n >= len(in) {
			return nil
		}
		return in[n:]
	}})
}

// TakeIf appends a stage keeping only the first n elements when cond is
// true. Counts outside the valid range clamp, matching slice semantics.
func (p *Pipeline[T]) TakeIf(cond bool, n int) *Pipeline[T] {
	if !cond {
		return p
	}
	return p.with(funcStage[T]{fn: func(in []T) []T {
		if n <= 0 {
			return nil
		}
		if n >= len(in) {
			return in
		}
		return in[:n]
	}})
}

// MapIf projects every element through main when cond is true, otherwise
// through alt. Unlike the other combinators there is no identity branch;
// exactly one selector always runs. Methods cannot introduce type
// parameters, so this is a free function.
func MapIf[T, R any](p *Pipeline[T], cond bool, main func(T) R, alt func(T) R) *Pipeline[R] {
	sel := main
	if !cond {
		sel = alt
	}
	return &Pipeline[R]{source: func() []R {
		in := p.Items()
		out := make([]R, len(in))
		for i, v := range in {
			out[i] = sel(v)
		}
		return out
	}}
}

// Items materializes the pipeline: the source is enumerated and every
// stage runs in composition order. The returned slice is freshly
// allocated on each call.
func (p *Pipeline[T]) Items() []T {
	out := p.source()
	for _, s := range p.stages {
		out = s.apply(out)
	}
	result := make([]T, len(out))
	copy(result, out)
	return result
}

// Count materializes the pipeline and returns the element count.
func (p *Pipeline[T]) Count() int {
	return len(p.Items())
}
