// ABOUTME: Tests for the fluent query and assertion engine.
// ABOUTME: Covers selectors, quantifier semantics, substring criteria, and failure diagnostics.

package check

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-harness/internal/activity"
)

func sampleReplies() []activity.Activity {
	typing := activity.Activity{Type: activity.TypeTyping, ConversationID: "conv-1"}
	return []activity.Activity{
		typing,
		activity.New("conv-1", "hello there"),
		activity.New("conv-1", "say hello back"),
		activity.New("conv-1", "goodbye"),
	}
}

// === selectors ===

func TestWhereNarrowsByEquality(t *testing.T) {
	q := Check(sampleReplies()).Where(Criteria{"type": "message"})
	assert.Equal(t, 3, q.Count())
}

func TestWhereDoesNotMutateSource(t *testing.T) {
	replies := sampleReplies()
	q := Check(replies)
	q.Where(Criteria{"type": "typing"})

	assert.Equal(t, 4, q.Count())
	assert.Len(t, replies, 4)
}

func TestWhereNot(t *testing.T) {
	q := Check(sampleReplies()).WhereNot(Criteria{"type": "typing"})
	require.Equal(t, 3, q.Count())
	for _, a := range q.Get() {
		assert.Equal(t, activity.TypeMessage, a.Type)
	}
}

func TestFirstLastAt(t *testing.T) {
	replies := sampleReplies()

	first, err := Check(replies).First().GetOne()
	require.NoError(t, err)
	assert.Equal(t, activity.TypeTyping, first.Type)

	last, err := Check(replies).Last().GetOne()
	require.NoError(t, err)
	assert.Equal(t, "goodbye", last.Text)

	second, err := Check(replies).At(1).GetOne()
	require.NoError(t, err)
	assert.Equal(t, "hello there", second.Text)

	assert.Equal(t, 0, Check(replies).At(99).Count())
	assert.Equal(t, 0, Check(nil).First().Count())
}

func TestCapAndMerge(t *testing.T) {
	replies := sampleReplies()

	assert.Equal(t, 2, Check(replies).Cap(2).Count())
	assert.Equal(t, 4, Check(replies).Cap(99).Count())

	merged := Check(replies).First().Merge(Check(replies).Last())
	require.Equal(t, 2, merged.Count())
	assert.Equal(t, activity.TypeTyping, merged.Get()[0].Type)
	assert.Equal(t, "goodbye", merged.Get()[1].Text)
}

// === quantifiers ===

func TestForExactlyConstrainsMatchCountNotSetSize(t *testing.T) {
	replies := sampleReplies()

	// four items total, exactly two contain "hello"
	err := Check(replies).ForExactly(2).That(Criteria{"text": "~hello"})
	assert.NoError(t, err)

	err = Check(replies).ForExactly(3).That(Criteria{"text": "~hello"})
	assert.Error(t, err)
}

func TestForAllSubstring(t *testing.T) {
	replies := sampleReplies()

	err := Check(replies).Where(Criteria{"text": "~hello"}).That(Criteria{"type": "message"})
	assert.NoError(t, err)

	err = Check(replies).Where(Criteria{"type": "message"}).That(Criteria{"text": "~hello"})
	require.Error(t, err)

	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "for_all", failure.Quantifier)
	assert.Len(t, failure.Items, 3)
	assert.Len(t, failure.Matched, 2)
}

func TestSubstringIsCaseSensitive(t *testing.T) {
	replies := []activity.Activity{activity.New("conv-1", "Hello there")}

	assert.Error(t, Check(replies).That(Criteria{"text": "~hello"}))
	assert.NoError(t, Check(replies).That(Criteria{"text": "~Hello"}))
}

func TestForAnyForNoneForOne(t *testing.T) {
	replies := sampleReplies()

	assert.NoError(t, Check(replies).ForAny().That(Criteria{"text": "goodbye"}))
	assert.Error(t, Check(replies).ForAny().That(Criteria{"text": "never sent"}))

	assert.NoError(t, Check(replies).ForNone().That(Criteria{"type": "event"}))
	assert.Error(t, Check(replies).ForNone().That(Criteria{"type": "typing"}))

	assert.NoError(t, Check(replies).ForOne().That(Criteria{"type": "typing"}))
	assert.Error(t, Check(replies).ForOne().That(Criteria{"type": "message"}))
}

func TestForAllIsVacuouslyTrueOnEmptySet(t *testing.T) {
	err := Check(nil).That(Criteria{"type": "message"})
	assert.NoError(t, err)

	assert.Error(t, Check(nil).ForAny().That(Criteria{"type": "message"}))
}

// === criteria shapes ===

func TestPredicateCriterion(t *testing.T) {
	replies := sampleReplies()

	longText := Predicate(func(v any) bool {
		s, ok := v.(string)
		return ok && len(s) > 10
	})
	err := Check(replies).ForExactly(2).That(Criteria{"text": longText})
	assert.NoError(t, err)
}

func TestItemPredicateCriterion(t *testing.T) {
	replies := sampleReplies()

	isFinal := ItemPredicate(func(a activity.Activity) bool { return a.IsFinalMessage() })
	assert.NoError(t, Check(replies).ForNone().That(Criteria{"": isFinal}))
}

func TestBagFieldCriteria(t *testing.T) {
	var withExtra activity.Activity
	require.NoError(t, json.Unmarshal([]byte(
		`{"type":"message","conversationId":"conv-1","text":"ok","score":3,"channel":"msteams"}`,
	), &withExtra))
	replies := []activity.Activity{withExtra}

	assert.NoError(t, Check(replies).That(Criteria{"score": 3}))
	assert.NoError(t, Check(replies).That(Criteria{"channel": "~teams"}))
	assert.Error(t, Check(replies).That(Criteria{"score": 4}))
	assert.Error(t, Check(replies).That(Criteria{"missing": "anything"}))
}

// === terminals ===

func TestGetOne(t *testing.T) {
	replies := sampleReplies()

	_, err := Check(replies).GetOne()
	assert.Error(t, err)

	a, err := Check(replies).Where(Criteria{"type": "typing"}).GetOne()
	require.NoError(t, err)
	assert.Equal(t, activity.TypeTyping, a.Type)
}

func TestExistsAndCountIs(t *testing.T) {
	replies := sampleReplies()

	assert.True(t, Check(replies).Where(Criteria{"text": "goodbye"}).Exists())
	assert.False(t, Check(replies).Where(Criteria{"text": "never"}).Exists())

	assert.NoError(t, Check(replies).Where(Criteria{"type": "message"}).CountIs(3))
	err := Check(replies).CountIs(1)
	require.Error(t, err)

	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "count_is(1)", failure.Quantifier)
}

func TestFailureErrorCarriesDiagnostics(t *testing.T) {
	replies := sampleReplies()

	err := Check(replies).That(Criteria{"text": "~hello"})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "for_all")
	assert.Contains(t, msg, "text=~hello")
	assert.Contains(t, msg, "matched: 2")
	assert.Contains(t, msg, "goodbye")
}
