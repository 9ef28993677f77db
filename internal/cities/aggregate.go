package cities

// Per-city outcome labels.
const (
	OutcomeEnriched = "enriched"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// CityOutcome is the result of one city's pipeline within a run.
type CityOutcome struct {
	Name    string
	Outcome string
	Reason  string
}

// Summarize combines per-city outcomes into a Summary.
// Skipped cities (deleted while in flight) count toward neither successes nor failures.
func Summarize(runID string, outcomes []CityOutcome) Summary {
	s := Summary{
		RunID:        runID,
		Total:        len(outcomes),
		FailedCities: make([]Failure, 0),
	}

	for _, o := range outcomes {
		switch o.Outcome {
		case OutcomeEnriched:
			s.EnrichedCount++
		case OutcomeFailed:
			s.FailedCount++
			s.FailedCities = append(s.FailedCities, Failure{Name: o.Name, Reason: o.Reason})
		default:
			s.SkippedCount++
		}
	}

	attempted := s.Total - s.SkippedCount
	switch {
	case s.FailedCount == 0:
		s.Status = StatusFullSuccess
	case s.FailedCount == attempted:
		s.Status = StatusTotalFailure
	default:
		s.Status = StatusPartialSuccess
	}

	return s
}
