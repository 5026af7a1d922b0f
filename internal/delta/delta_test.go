package delta

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestChange_NullSidesSerialize(t *testing.T) {
	c := NewComputer(DefaultOptions())

	result := c.Compute(
		map[string]interface{}{"note": "x"},
		map[string]interface{}{"note": nil},
	)
	require.True(t, result.HasChanges)

	body, err := json.Marshal(result.Changes["note"])
	require.NoError(t, err)
	// A field cleared to null keeps both sides in the stored record.
	require.JSONEq(t, `{"old":"x","new":null}`, string(body))
}

func TestCompute_IdenticalDocuments(t *testing.T) {
	c := NewComputer(DefaultOptions())

	doc := map[string]interface{}{
		"name":  "alpha",
		"count": int64(3),
		"tags":  []interface{}{"a", "b"},
		"meta": map[string]interface{}{
			"owner": "ops",
		},
	}

	result := c.Compute(doc, doc)
	require.False(t, result.HasChanges)
	require.Empty(t, result.Changes)
}

func TestCompute_ScalarChange(t *testing.T) {
	c := NewComputer(DefaultOptions())

	before := map[string]interface{}{"name": "alpha", "count": int64(3)}
	after := map[string]interface{}{"name": "beta", "count": int64(3)}

	result := c.Compute(before, after)
	require.True(t, result.HasChanges)
	require.Len(t, result.Changes, 1)
	require.Equal(t, "alpha", result.Changes["name"].Old)
	require.Equal(t, "beta", result.Changes["name"].New)
	require.False(t, result.Changes["name"].FullDocument)
}

func TestCompute_CreateAndDelete(t *testing.T) {
	c := NewComputer(DefaultOptions())
	doc := map[string]interface{}{"name": "alpha"}

	t.Run("nil before is a creation", func(t *testing.T) {
		result := c.Compute(nil, doc)
		require.True(t, result.HasChanges)
		require.Len(t, result.Changes, 1)
		change := result.Changes[""]
		require.Nil(t, change.Old)
		require.Equal(t, doc, change.New)
	})

	t.Run("nil after is a deletion", func(t *testing.T) {
		result := c.Compute(doc, nil)
		require.True(t, result.HasChanges)
		require.Len(t, result.Changes, 1)
		change := result.Changes[""]
		require.Equal(t, doc, change.Old)
		require.Nil(t, change.New)
	})
}

func TestCompute_BlacklistedFields(t *testing.T) {
	c := NewComputer(DefaultOptions())

	before := map[string]interface{}{
		"name":      "alpha",
		"__v":       int64(1),
		"updatedAt": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		"updatedBy": "user-1",
	}
	after := map[string]interface{}{
		"name":      "beta",
		"__v":       int64(2),
		"updatedAt": time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		"updatedBy": "user-2",
	}

	result := c.Compute(before, after)
	require.True(t, result.HasChanges)
	require.Len(t, result.Changes, 1)
	require.Contains(t, result.Changes, "name")
}

func TestCompute_SoftDeleteFieldsBypassBlacklist(t *testing.T) {
	opts := DefaultOptions()
	opts.Blacklist = append(opts.Blacklist, "deletedAt", "deletedBy")
	c := NewComputer(opts)

	deletedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	before := map[string]interface{}{"name": "alpha"}
	after := map[string]interface{}{
		"name":      "alpha",
		"deletedAt": deletedAt,
		"deletedBy": "user-1",
	}

	result := c.Compute(before, after)
	require.True(t, result.HasChanges)
	require.Contains(t, result.Changes, "deletedAt")
	require.Contains(t, result.Changes, "deletedBy")
	require.Equal(t, deletedAt, result.Changes["deletedAt"].New)
}

func TestCompute_ArrayHandling(t *testing.T) {
	t.Run("small arrays diff by index", func(t *testing.T) {
		c := NewComputer(DefaultOptions())

		before := map[string]interface{}{"tags": []interface{}{"a", "b"}}
		after := map[string]interface{}{"tags": []interface{}{"a", "c", "d"}}

		result := c.Compute(before, after)
		require.True(t, result.HasChanges)
		require.Equal(t, Change{Old: "b", New: "c"}, result.Changes["tags.1"])
		// Appended elements surface with a nil old side.
		require.Equal(t, Change{Old: nil, New: "d"}, result.Changes["tags.2"])
		require.NotContains(t, result.Changes, "tags.0")
	})

	t.Run("oversized array collapses to one entry", func(t *testing.T) {
		c := NewComputer(DefaultOptions())

		big := make([]interface{}, DefaultArrayDiffMaxSize+1)
		bigger := make([]interface{}, DefaultArrayDiffMaxSize+1)
		for i := range big {
			big[i] = i
			bigger[i] = i + 1
		}
		before := map[string]interface{}{"items": big}
		after := map[string]interface{}{"items": bigger}

		result := c.Compute(before, after)
		require.True(t, result.HasChanges)
		require.Len(t, result.Changes, 1)
		change := result.Changes["items"]
		require.True(t, change.FullDocument)
	})

	t.Run("replace mode never diffs by index", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ArrayHandling = ArrayReplace
		c := NewComputer(opts)

		before := map[string]interface{}{"tags": []interface{}{"a"}}
		after := map[string]interface{}{"tags": []interface{}{"b"}}

		result := c.Compute(before, after)
		require.Len(t, result.Changes, 1)
		require.True(t, result.Changes["tags"].FullDocument)
	})
}

func TestCompute_DepthCeiling(t *testing.T) {
	c := NewComputer(DefaultOptions())

	deep := func(leaf interface{}) map[string]interface{} {
		return map[string]interface{}{
			"a": map[string]interface{}{
				"b": map[string]interface{}{
					"c": map[string]interface{}{
						"d": leaf,
					},
				},
			},
		}
	}

	result := c.Compute(deep("x"), deep("y"))
	require.True(t, result.HasChanges)
	require.Len(t, result.Changes, 1)
	change := result.Changes["a.b.c"]
	require.True(t, change.FullDocument)

	same := c.Compute(deep("x"), deep("x"))
	require.False(t, same.HasChanges)
}

func TestCompute_SelfReferentialInput(t *testing.T) {
	c := NewComputer(DefaultOptions())

	before := map[string]interface{}{"name": "alpha"}
	before["self"] = before
	after := map[string]interface{}{"name": "beta"}
	after["self"] = after

	result := c.Compute(before, after)
	require.True(t, result.HasChanges)
	require.Contains(t, result.Changes, "name")
}

func TestCompute_TimeComparedByInstant(t *testing.T) {
	c := NewComputer(DefaultOptions())

	instant := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := map[string]interface{}{"createdAt": instant}
	after := map[string]interface{}{"createdAt": primitive.NewDateTimeFromTime(instant)}

	result := c.Compute(before, after)
	require.False(t, result.HasChanges)
}
