package acoustic

import "sync/atomic"

// Frame is one feature vector produced by the front end.
type Frame struct {
	Index  int
	Values []float64
}

// Senone is a tied output distribution scored once per frame.
// Implementations must be safe for concurrent Score calls.
type Senone interface {
	ID() int64
	Score(f *Frame) float64
}

// ScoreCachingSenone remembers the score of the most recent frame so that
// repeated requests within one decode step are not recomputed. The cache is
// keyed by frame identity, so concurrent sessions scoring distinct frames
// only cost each other cache hits.
type ScoreCachingSenone struct {
	Senone
	last atomic.Pointer[cachedScore]
}

type cachedScore struct {
	frame *Frame
	score float64
}

// NewScoreCachingSenone wraps s.
func NewScoreCachingSenone(s Senone) *ScoreCachingSenone {
	return &ScoreCachingSenone{Senone: s}
}

// Score returns the cached score when f is the last frame scored.
func (c *ScoreCachingSenone) Score(f *Frame) float64 {
	if p := c.last.Load(); p != nil && p.frame == f {
		return p.score
	}
	s := c.Senone.Score(f)
	c.last.Store(&cachedScore{frame: f, score: s})
	return s
}

// Unwrap returns the wrapped senone.
func (c *ScoreCachingSenone) Unwrap() Senone { return c.Senone }
