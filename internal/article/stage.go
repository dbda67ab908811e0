package article

// Stage is a step of the per-article lifecycle. Stages only move forward;
// Failed is terminal and reachable from any non-terminal stage.
type Stage int

const (
	StageNotStarted Stage = iota
	StageFetched
	StageExtracted
	StageAnnotated
	StageFailed
)

var stageNames = map[Stage]string{
	StageNotStarted: "not-started",
	StageFetched:    "fetched",
	StageExtracted:  "cleaned-and-scored",
	StageAnnotated:  "nlp-annotated",
	StageFailed:     "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further stage can run.
func (s Stage) Terminal() bool {
	return s == StageAnnotated || s == StageFailed
}

// MarshalText renders the stage name in JSON records.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
