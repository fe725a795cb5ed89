package model

// VideoWindow is a time span of a source video, in seconds.
type VideoWindow struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Cleanliness float64 `json:"cleanliness"`
}

// Duration returns End - Start.
func (w VideoWindow) Duration() float64 { return w.End - w.Start }

// Overlaps reports whether w and o share any time.
func (w VideoWindow) Overlaps(o VideoWindow) bool {
	return w.Start < o.End && o.Start < w.End
}

// EncodedClip is a looping GIF produced under a byte budget. BestEffort is
// set when no encoding met the budget and the smallest attempt was kept.
type EncodedClip struct {
	Path       string      `json:"path"`
	Window     VideoWindow `json:"window"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	FPS        int         `json:"fps"`
	SizeBytes  int64       `json:"size_bytes"`
	BestEffort bool        `json:"best_effort"`
	Attempts   int         `json:"attempts"`
}
