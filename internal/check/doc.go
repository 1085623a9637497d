// Package check is the fluent query and assertion layer over captured
// activity collections, whether from a completed exchange or a transcript
// snapshot.
//
// A chain reads selector -> quantifier -> terminal:
//
//	err := check.Check(replies).
//		Where(check.Criteria{"type": "message"}).
//		ForExactly(2).
//		That(check.Criteria{"text": "~hello"})
//
// Selectors narrow a working copy without touching the source. The
// quantifier decides how many narrowed items must satisfy That's
// criteria; ForExactly(2) constrains the match count, not the set size.
// Failures carry the criteria, the narrowed set, and per-item match
// results.
//
// Criterion values: a string starting with "~" is a case-sensitive
// substring match on the stringified field, other strings compare
// exactly, funcs are predicates over the field value or the whole
// activity, and remaining values compare by loose equality (numbers as
// floats, matching JSON decoding).
package check
