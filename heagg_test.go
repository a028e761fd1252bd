package heagg

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	for _, tag := range []string{"sum", "average"} {
		op, err := ParseOperation(tag)
		require.NoError(t, err)
		require.True(t, op.Valid())
		require.Equal(t, tag, op.String())
	}

	for _, tag := range []string{"multiply", "", "SUM", "Average", " sum", "avg"} {
		t.Run(fmt.Sprintf("tag=%q", tag), func(t *testing.T) {
			op, err := ParseOperation(tag)
			require.ErrorIs(t, err, ErrUnsupportedOperation)
			require.False(t, op.Valid())
		})
	}
}

func TestOperationJSON(t *testing.T) {
	type req struct {
		Operation Operation `json:"operation"`
	}

	var r req
	require.NoError(t, json.Unmarshal([]byte(`{"operation":"average"}`), &r))
	require.Equal(t, Average, r.Operation)

	b, err := json.Marshal(req{Operation: Sum})
	require.NoError(t, err)
	require.JSONEq(t, `{"operation":"sum"}`, string(b))

	require.ErrorIs(t, json.Unmarshal([]byte(`{"operation":"multiply"}`), &r), ErrUnsupportedOperation)

	_, err = json.Marshal(req{})
	require.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	require.Equal(t, "", Kind(nil))
	require.Equal(t, KindInternal, Kind(fmt.Errorf("boom")))

	for _, k := range kinds {
		wrapped := &StageError{Stage: StageContextLoaded, Err: fmt.Errorf("ciphertext 3: %w", k.err)}
		require.Equal(t, k.name, Kind(wrapped))

		err, known := ErrorFromKind(k.name)
		require.True(t, known)
		require.ErrorIs(t, wrapped, err)

		stage, has := StageOf(wrapped)
		require.True(t, has)
		require.Equal(t, StageContextLoaded, stage)
	}

	_, known := ErrorFromKind("NotAKind")
	require.False(t, known)
}

func TestStageNames(t *testing.T) {
	for s := StageReceived; s <= StageResponded; s++ {
		parsed, ok := ParseStage(s.String())
		require.True(t, ok)
		require.Equal(t, s, parsed)
	}
	_, ok := ParseStage("Nowhere")
	require.False(t, ok)
	require.Equal(t, "Stage(42)", Stage(42).String())
}
