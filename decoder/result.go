package decoder

// Result holds the recognition output.
type Result struct {
	Text     string  // recognized text
	Words    []Word  // word-level details, fillers excluded
	LogScore float64 // total log probability
	Final    bool    // best path ended in a final state
}

// Word holds per-word timing information.
type Word struct {
	Text       string
	StartFrame int
	EndFrame   int // inclusive
}
