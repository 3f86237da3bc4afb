package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgress() Progress {
	return Progress{
		UserID:       "u1",
		Mode:         ModeExam,
		QuestionIDs:  []string{"a", "b", "c"},
		CurrentIndex: 1,
		Selections:   map[string][]int{"a": {2, 0}, "c": {1}},
		Answered:     map[string]bool{},
		StartTime:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		TimeLeft:     500,
		Started:      true,
	}
}

func TestSaveRestore(t *testing.T) {
	p := sampleProgress()
	snap, err := Save(p)
	require.NoError(t, err)

	got, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	// Pick order survives.
	assert.Equal(t, []int{2, 0}, got.Selections["a"])
}

func TestRestoreCorrupt(t *testing.T) {
	valid, err := Save(sampleProgress())
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"garbage", "not json"},
		{"wrong version", `{"version":7,"progress":{}}`},
		{"no questions", `{"version":1,"progress":{"mode":"exam","questionIds":[]}}`},
		{"bad mode", `{"version":1,"progress":{"mode":"quiz","questionIds":["a"]}}`},
		{"index out of range", `{"version":1,"progress":{"mode":"exam","questionIds":["a"],"currentIndex":3}}`},
		{"negative time", `{"version":1,"progress":{"mode":"exam","questionIds":["a"],"timeLeft":-1}}`},
		{"unknown selection", `{"version":1,"progress":{"mode":"exam","questionIds":["a"],"selections":{"z":[0]}}}`},
		{"negative option", `{"version":1,"progress":{"mode":"exam","questionIds":["a"],"selections":{"a":[-1]}}}`},
		{"duplicate ids", `{"version":1,"progress":{"mode":"exam","questionIds":["a","a"]}}`},
		{"truncated", string(valid[:len(valid)/2])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Restore(Snapshot(tt.data))
			assert.ErrorIs(t, err, ErrSnapshotCorrupt)
		})
	}
}

func TestRestoreFillsMaps(t *testing.T) {
	p, err := Restore(Snapshot(`{"version":1,"progress":{"userId":"u","mode":"exam","questionIds":["a"]}}`))
	require.NoError(t, err)
	assert.NotNil(t, p.Selections)
	assert.NotNil(t, p.Answered)
}
