package query

import "time"

// TraceInput bundles everything the recorder assembles into a SessionTrace.
// The timestamp is supplied by the caller so assembly stays pure and
// repeatable.
type TraceInput struct {
	SessionID      string
	Timestamp      time.Time
	UserQuery      string
	FinalAnswer    string
	Iterations     []IterationRecord
	FilesAccessed  []string
	AvailableFiles []string
	SystemPrompt   string
	MaxIterations  int
}

// BuildTrace assembles the session trace for persistence. Pure assembly, no
// I/O: iteration order and set membership are preserved exactly as the driver
// accumulated them, and identical inputs always produce structurally
// identical output.
func BuildTrace(in TraceInput) SessionTrace {
	return SessionTrace{
		SessionID:            in.SessionID,
		Timestamp:            in.Timestamp,
		UserQuery:            in.UserQuery,
		FinalAnswer:          in.FinalAnswer,
		TotalIterations:      len(in.Iterations),
		MaxIterationsAllowed: in.MaxIterations,
		FilesAccessed:        emptyIfNil(in.FilesAccessed),
		AvailableFiles:       emptyIfNil(in.AvailableFiles),
		SystemPrompt:         in.SystemPrompt,
		Iterations:           emptyIfNil(in.Iterations),
	}
}

// emptyIfNil keeps the serialized trace schema stable: downstream consumers
// expect JSON arrays, never null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
