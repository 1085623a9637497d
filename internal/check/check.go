// ABOUTME: Fluent, side-effect-free query and assertion layer over activity collections.
// ABOUTME: Selectors narrow, quantifiers decide how many items must match, terminals assert or extract.

package check

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/2389/coven-harness/internal/activity"
)

// Criteria maps field names to expected values. A string value prefixed
// with "~" means case-sensitive substring match on the stringified field;
// a Predicate value is called with the field's decoded value; anything
// else is compared for exact equality.
type Criteria map[string]any

// Predicate tests a single field value.
type Predicate func(value any) bool

// ItemPredicate tests a whole activity.
type ItemPredicate func(a activity.Activity) bool

// quantifier selects how many narrowed items must satisfy the assertion
// criteria for That to pass.
type quantifier struct {
	name string
	ok   func(matched, total int) bool
}

// Query is an immutable view over an ordered activity collection. Every
// selector returns a new Query; the source is never mutated.
type Query struct {
	items []activity.Activity
	quant quantifier
}

// Check constructs a query over the given activities. The default
// quantifier is ForAll.
func Check(items []activity.Activity) *Query {
	copied := make([]activity.Activity, len(items))
	copy(copied, items)
	return &Query{
		items: copied,
		quant: quantifier{name: "for_all", ok: func(m, t int) bool { return m == t }},
	}
}

// derive returns a new query sharing the quantifier but holding a new
// item slice.
func (q *Query) derive(items []activity.Activity) *Query {
	return &Query{items: items, quant: q.quant}
}

// Where keeps only items matching every criterion.
func (q *Query) Where(criteria Criteria) *Query {
	var kept []activity.Activity
	for _, a := range q.items {
		if matchItem(a, criteria) {
			kept = append(kept, a)
		}
	}
	return q.derive(kept)
}

// WhereNot keeps only items matching none of the criteria fully.
func (q *Query) WhereNot(criteria Criteria) *Query {
	var kept []activity.Activity
	for _, a := range q.items {
		if !matchItem(a, criteria) {
			kept = append(kept, a)
		}
	}
	return q.derive(kept)
}

// WhereFunc keeps only items the predicate accepts.
func (q *Query) WhereFunc(fn ItemPredicate) *Query {
	var kept []activity.Activity
	for _, a := range q.items {
		if fn(a) {
			kept = append(kept, a)
		}
	}
	return q.derive(kept)
}

// First narrows to the first item, or to the empty set.
func (q *Query) First() *Query {
	if len(q.items) == 0 {
		return q.derive(nil)
	}
	return q.derive(q.items[:1])
}

// Last narrows to the last item, or to the empty set.
func (q *Query) Last() *Query {
	if len(q.items) == 0 {
		return q.derive(nil)
	}
	return q.derive(q.items[len(q.items)-1:])
}

// At narrows to the item at index n; out of range yields the empty set.
func (q *Query) At(n int) *Query {
	if n < 0 || n >= len(q.items) {
		return q.derive(nil)
	}
	return q.derive(q.items[n : n+1])
}

// Cap narrows to at most the first n items.
func (q *Query) Cap(n int) *Query {
	if n < 0 {
		n = 0
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	return q.derive(q.items[:n])
}

// Merge appends the other query's working set after this one's,
// preserving both orders.
func (q *Query) Merge(other *Query) *Query {
	merged := make([]activity.Activity, 0, len(q.items)+len(other.items))
	merged = append(merged, q.items...)
	merged = append(merged, other.items...)
	return q.derive(merged)
}

// ForAll requires every narrowed item to match (vacuously true on an
// empty set). This is the default.
func (q *Query) ForAll() *Query {
	out := q.derive(q.items)
	out.quant = quantifier{name: "for_all", ok: func(m, t int) bool { return m == t }}
	return out
}

// ForAny requires at least one narrowed item to match.
func (q *Query) ForAny() *Query {
	out := q.derive(q.items)
	out.quant = quantifier{name: "for_any", ok: func(m, t int) bool { return m >= 1 }}
	return out
}

// ForNone requires no narrowed item to match.
func (q *Query) ForNone() *Query {
	out := q.derive(q.items)
	out.quant = quantifier{name: "for_none", ok: func(m, t int) bool { return m == 0 }}
	return out
}

// ForOne requires exactly one narrowed item to match.
func (q *Query) ForOne() *Query {
	out := q.derive(q.items)
	out.quant = quantifier{name: "for_one", ok: func(m, t int) bool { return m == 1 }}
	return out
}

// ForExactly requires exactly n narrowed items to match. The narrowed
// set may be any size; only the match count is constrained.
func (q *Query) ForExactly(n int) *Query {
	out := q.derive(q.items)
	out.quant = quantifier{
		name: fmt.Sprintf("for_exactly(%d)", n),
		ok:   func(m, t int) bool { return m == n },
	}
	return out
}

// That evaluates the criteria against the narrowed set under the active
// quantifier. On failure it returns a *FailureError carrying the full
// diagnostic context, never a bare boolean-shaped error.
func (q *Query) That(criteria Criteria) error {
	var matched []int
	for i, a := range q.items {
		if matchItem(a, criteria) {
			matched = append(matched, i)
		}
	}
	if q.quant.ok(len(matched), len(q.items)) {
		return nil
	}
	return &FailureError{
		Quantifier: q.quant.name,
		Criteria:   criteria,
		Items:      q.items,
		Matched:    matched,
	}
}

// Get returns a copy of the narrowed set.
func (q *Query) Get() []activity.Activity {
	out := make([]activity.Activity, len(q.items))
	copy(out, q.items)
	return out
}

// GetOne returns the single narrowed item, failing when the set does not
// hold exactly one.
func (q *Query) GetOne() (activity.Activity, error) {
	if len(q.items) != 1 {
		return activity.Activity{}, fmt.Errorf("expected exactly one activity, have %d", len(q.items))
	}
	return q.items[0], nil
}

// Count returns the size of the narrowed set.
func (q *Query) Count() int {
	return len(q.items)
}

// Exists reports whether the narrowed set is non-empty.
func (q *Query) Exists() bool {
	return len(q.items) > 0
}

// CountIs asserts the narrowed set has exactly n items.
func (q *Query) CountIs(n int) error {
	if len(q.items) == n {
		return nil
	}
	return &FailureError{
		Quantifier: fmt.Sprintf("count_is(%d)", n),
		Criteria:   nil,
		Items:      q.items,
		Matched:    nil,
	}
}

// matchItem reports whether the activity satisfies every criterion.
func matchItem(a activity.Activity, criteria Criteria) bool {
	for field, want := range criteria {
		value, present := a.Field(field)
		switch expected := want.(type) {
		case Predicate:
			if !present || !expected(value) {
				return false
			}
		case func(any) bool:
			if !present || !expected(value) {
				return false
			}
		case ItemPredicate:
			if !expected(a) {
				return false
			}
		case func(activity.Activity) bool:
			if !expected(a) {
				return false
			}
		case string:
			if !present {
				return false
			}
			if rest, isSub := strings.CutPrefix(expected, "~"); isSub {
				if !strings.Contains(stringify(value), rest) {
					return false
				}
			} else if stringify(value) != expected {
				return false
			}
		default:
			if !present || !looseEqual(value, want) {
				return false
			}
		}
	}
	return true
}

// stringify renders a field value for string comparison and substring
// matching.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// looseEqual compares a decoded field value against an expected literal.
// JSON decoding yields float64 for numbers, so numeric expectations are
// compared as floats.
func looseEqual(value, want any) bool {
	if wf, ok := asFloat(want); ok {
		vf, ok := asFloat(value)
		return ok && vf == wf
	}
	return reflect.DeepEqual(value, want)
}

func asFloat(v any) (float64, bool) {
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

// FailureError reports an assertion failure with the evaluated criteria,
// the full narrowed set, and which items matched.
type FailureError struct {
	Quantifier string
	Criteria   Criteria
	Items      []activity.Activity
	Matched    []int
}

// Error renders the failure with per-item match results.
func (e *FailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "assertion failed: %s over %d activities\n", e.Quantifier, len(e.Items))

	if len(e.Criteria) > 0 {
		fields := make([]string, 0, len(e.Criteria))
		for f := range e.Criteria {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("%s=%s", f, describeCriterion(e.Criteria[f])))
		}
		fmt.Fprintf(&b, "  criteria: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "  matched: %d\n", len(e.Matched))

	matchedSet := make(map[int]bool, len(e.Matched))
	for _, i := range e.Matched {
		matchedSet[i] = true
	}
	for i, a := range e.Items {
		mark := "✗"
		if matchedSet[i] {
			mark = "✓"
		}
		fmt.Fprintf(&b, "  [%d] %s type=%s conversation=%s text=%q\n",
			i, mark, a.Type, a.ConversationID, a.Text)
	}
	return b.String()
}

// describeCriterion renders a criterion value for diagnostics.
func describeCriterion(v any) string {
	switch v.(type) {
	case Predicate, func(any) bool:
		return "<predicate>"
	case ItemPredicate, func(activity.Activity) bool:
		return "<item predicate>"
	}
	return fmt.Sprintf("%v", v)
}
