package scoring

import "github.com/dukerupert/accountable/internal/model"

// Criterion names, in breakdown order.
const (
	CriterionReps       = "reps"
	CriterionSteps      = "steps"
	CriterionWork       = "work"
	CriterionMeditation = "meditation"
)

// Rules holds the thresholds and per-criterion weights.
type Rules struct {
	MinReps          int     `yaml:"minReps"          envconfig:"MIN_REPS"`
	MinSteps         int     `yaml:"minSteps"         envconfig:"MIN_STEPS"`
	MinWorkHours     float64 `yaml:"minWorkHours"     envconfig:"MIN_WORK_HOURS"`
	RepsWeight       int     `yaml:"repsWeight"       envconfig:"REPS_WEIGHT"`
	StepsWeight      int     `yaml:"stepsWeight"      envconfig:"STEPS_WEIGHT"`
	WorkWeight       int     `yaml:"workWeight"       envconfig:"WORK_WEIGHT"`
	MeditationWeight int     `yaml:"meditationWeight" envconfig:"MEDITATION_WEIGHT"`
}

// DefaultRules returns the standard thresholds: 150 reps, 15000 steps,
// 5 hours of work, meditation; weighted 3/3/3/2.
func DefaultRules() Rules {
	return Rules{
		MinReps:          150,
		MinSteps:         15000,
		MinWorkHours:     5.0,
		RepsWeight:       3,
		StepsWeight:      3,
		WorkWeight:       3,
		MeditationWeight: 2,
	}
}

// MaxPenalty is the sum of all weights, i.e. the score of a log that fails
// every criterion, as a positive number.
func (r Rules) MaxPenalty() int {
	return r.RepsWeight + r.StepsWeight + r.WorkWeight + r.MeditationWeight
}

// Criterion is one line of a score breakdown. Value is nil when the metric
// was not reported.
type Criterion struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Value  any    `json:"value"`
	Points int    `json:"points"`
}

type Result struct {
	Total     int         `json:"total"`
	Breakdown []Criterion `json:"breakdown"`
}

// AllOK reports whether every criterion was satisfied.
func (r Result) AllOK() bool {
	for _, c := range r.Breakdown {
		if !c.OK {
			return false
		}
	}
	return len(r.Breakdown) > 0
}

// Failed returns the criteria that were not satisfied.
func (r Result) Failed() []Criterion {
	var failed []Criterion
	for _, c := range r.Breakdown {
		if !c.OK {
			failed = append(failed, c)
		}
	}
	return failed
}

// Score awards +weight for each satisfied criterion and -weight for each
// unsatisfied one. Missing values are unsatisfied.
func Score(m model.Metrics, r Rules) Result {
	var res Result

	add := func(name string, ok bool, value any, weight int) {
		pts := -weight
		if ok {
			pts = weight
		}
		res.Total += pts
		res.Breakdown = append(res.Breakdown, Criterion{Name: name, OK: ok, Value: value, Points: pts})
	}

	if m.Reps != nil {
		add(CriterionReps, *m.Reps >= r.MinReps, *m.Reps, r.RepsWeight)
	} else {
		add(CriterionReps, false, nil, r.RepsWeight)
	}

	if m.Steps != nil {
		add(CriterionSteps, *m.Steps >= r.MinSteps, *m.Steps, r.StepsWeight)
	} else {
		add(CriterionSteps, false, nil, r.StepsWeight)
	}

	if m.WorkHours != nil {
		add(CriterionWork, *m.WorkHours >= r.MinWorkHours, *m.WorkHours, r.WorkWeight)
	} else {
		add(CriterionWork, false, nil, r.WorkWeight)
	}

	add(CriterionMeditation, m.Meditated, m.Meditated, r.MeditationWeight)

	return res
}
