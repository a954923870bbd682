package match

// Flow configures the optional branches of the lifecycle.
type Flow struct {
	// Rounds is the number of elimination rounds, 1..MaxRounds.
	Rounds int
	// ArtifactWindow inserts artifact_selection between the semifinal and final brackets.
	ArtifactWindow bool
}

// DefaultFlow plays every round and opens the artifact window.
func DefaultFlow() Flow {
	return Flow{Rounds: MaxRounds, ArtifactWindow: true}
}

func (f Flow) rounds() int {
	if f.Rounds < 1 || f.Rounds > MaxRounds {
		return MaxRounds
	}
	return f.Rounds
}

// Table maps each target status to the prior statuses it may be entered from.
type Table map[Status][]Status

// Transitions builds the forward transition table for a flow.
func (f Flow) Transitions() Table {
	t := Table{
		StatusCountdown: {StatusWaiting},
		StatusIntro:     {StatusCountdown},
		StatusRound1:    {StatusIntro},
	}
	last := f.rounds()
	for n := 2; n <= last; n++ {
		t[Round(n)] = []Status{Round(n - 1)}
	}
	t[StatusSemifinalBracket] = []Status{Round(last)}
	if f.ArtifactWindow {
		t[StatusArtifactSelection] = []Status{StatusSemifinalBracket}
		t[StatusFinalBracket] = []Status{StatusArtifactSelection}
	} else {
		t[StatusFinalBracket] = []Status{StatusSemifinalBracket}
	}
	t[StatusEnding] = []Status{StatusFinalBracket}
	t[StatusEnded] = []Status{StatusEnding}
	return t
}

// ResetPriors are the statuses an explicit reset may return to waiting from.
var ResetPriors = []Status{StatusCountdown, StatusIntro}

// Next returns the forward successor of from and the priors the conditional
// write must expect. ok is false for terminal or unknown statuses.
func (f Flow) Next(from Status) (next Status, priors []Status, ok bool) {
	for target, allowed := range f.Transitions() {
		for _, p := range allowed {
			if p == from {
				return target, allowed, true
			}
		}
	}
	return "", nil, false
}

// Allowed reports whether from -> to is a legal forward transition.
func (f Flow) Allowed(from, to Status) bool {
	for _, p := range f.Transitions()[to] {
		if p == from {
			return true
		}
	}
	return false
}

// Path returns the statuses visited walking forward from start to target,
// excluding start. ok is false when target is unreachable.
func (f Flow) Path(start, target Status) ([]Status, bool) {
	var path []Status
	cur := start
	for cur != target {
		next, _, ok := f.Next(cur)
		if !ok {
			return nil, false
		}
		path = append(path, next)
		cur = next
	}
	return path, true
}
