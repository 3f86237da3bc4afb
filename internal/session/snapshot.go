package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

const snapshotVersion = 1

// Progress is the resumable state of a running session.
// Selections hold 0-based option indices in pick order.
type Progress struct {
	UserID       string           `json:"userId"`
	Mode         Mode             `json:"mode"`
	QuestionIDs  []string         `json:"questionIds"`
	CurrentIndex int              `json:"currentIndex"`
	Selections   map[string][]int `json:"selections"`
	Answered     map[string]bool  `json:"answered,omitempty"`
	StartTime    time.Time        `json:"startTime"`
	TimeLeft     int              `json:"timeLeft"`
	Started      bool             `json:"started"`
}

// Snapshot is the serialized form of Progress.
type Snapshot []byte

type snapshotEnvelope struct {
	Version  int      `json:"version"`
	Progress Progress `json:"progress"`
}

// SnapshotStore persists one snapshot per user.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, userID string, data []byte) error
	// GetSnapshot reports false when the user has no snapshot.
	GetSnapshot(ctx context.Context, userID string) ([]byte, bool, error)
	DeleteSnapshot(ctx context.Context, userID string) error
}

// Save serializes p.
func Save(p Progress) (Snapshot, error) {
	data, err := json.Marshal(snapshotEnvelope{Version: snapshotVersion, Progress: p})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Restore parses a snapshot written by Save. Anything that does not decode
// to a consistent Progress returns an error wrapping ErrSnapshotCorrupt.
func Restore(s Snapshot) (Progress, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(s, &env); err != nil {
		return Progress{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if env.Version != snapshotVersion {
		return Progress{}, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, env.Version)
	}
	if err := env.Progress.Validate(); err != nil {
		return Progress{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	p := env.Progress
	if p.Selections == nil {
		p.Selections = map[string][]int{}
	}
	if p.Answered == nil {
		p.Answered = map[string]bool{}
	}
	return p, nil
}

// Validate checks that p is internally consistent.
func (p Progress) Validate() error {
	if p.Mode != ModePractice && p.Mode != ModeExam {
		return fmt.Errorf("unknown mode %q", p.Mode)
	}
	if len(p.QuestionIDs) == 0 {
		return errors.New("no questions")
	}
	ids := make(map[string]bool, len(p.QuestionIDs))
	for _, id := range p.QuestionIDs {
		if ids[id] {
			return fmt.Errorf("duplicate question %s", id)
		}
		ids[id] = true
	}
	if p.CurrentIndex < 0 || p.CurrentIndex >= len(p.QuestionIDs) {
		return fmt.Errorf("current index %d out of range", p.CurrentIndex)
	}
	if p.TimeLeft < 0 {
		return fmt.Errorf("negative time left %d", p.TimeLeft)
	}
	for id, sel := range p.Selections {
		if !ids[id] {
			return fmt.Errorf("selection for unknown question %s", id)
		}
		for _, v := range sel {
			if v < 0 {
				return fmt.Errorf("negative option %d for question %s", v, id)
			}
		}
	}
	return nil
}

func (p Progress) clone() Progress {
	c := p
	c.QuestionIDs = slices.Clone(p.QuestionIDs)
	c.Selections = make(map[string][]int, len(p.Selections))
	for id, sel := range p.Selections {
		c.Selections[id] = slices.Clone(sel)
	}
	c.Answered = maps.Clone(p.Answered)
	if c.Answered == nil {
		c.Answered = map[string]bool{}
	}
	return c
}
