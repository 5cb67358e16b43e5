package model

// Metrics is the structured form of a daily log. Nil fields were not
// reported.
type Metrics struct {
	Reps      *int     `json:"reps"`
	Steps     *int     `json:"steps"`
	WorkHours *float64 `json:"work_hours"`
	Meditated bool     `json:"meditated"`
}
