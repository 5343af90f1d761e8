package engine

// transitions is the static routing table. Beyond the conditional entry the
// graph is linear and acyclic, so a run halts after at most
// 1 + 1 + 1 + |search_results| + 1 stage executions.
var transitions = map[StageID]StageID{
	StageSummarizeContext: StagePlan,
	StagePlan:             StageSearch,
	StageSearch:           StageSummarizeSource,
	StageSummarizeSource:  StageSynthesize,
	StageSynthesize:       stageDone,
}

// SelectEntry picks the entry stage. A follow-up without prior context
// degrades gracefully to a fresh plan; it is not an error.
func SelectEntry(isFollowUp, hasContext bool) StageID {
	if isFollowUp && hasContext {
		return StageSummarizeContext
	}
	return StagePlan
}

// Next returns the stage that follows id; ok is false past the end.
func Next(id StageID) (StageID, bool) {
	next, ok := transitions[id]
	if !ok || next == stageDone {
		return stageDone, false
	}
	return next, true
}
