package resolver

// State is a step of the resolution state machine.
type State int

const (
	StateInit State = iota
	StateValidateTargets
	StatePrepareWorkspace
	StateApplyTargetUpdates
	StateAttemptInstall
	StateAnalyzeAndSuggest
	StateSuccess
	StateExhausted
	StateFatal
	StateFinalize
	StateDone
)

var stateNames = [...]string{
	StateInit:               "INIT",
	StateValidateTargets:    "VALIDATE_TARGETS",
	StatePrepareWorkspace:   "PREPARE_WORKSPACE",
	StateApplyTargetUpdates: "APPLY_TARGET_UPDATES",
	StateAttemptInstall:     "ATTEMPT_INSTALL",
	StateAnalyzeAndSuggest:  "ANALYZE_AND_SUGGEST",
	StateSuccess:            "SUCCESS",
	StateExhausted:          "EXHAUSTED",
	StateFatal:              "FATAL",
	StateFinalize:           "FINALIZE",
	StateDone:               "DONE",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Terminal reports whether s ends the attempt loop.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateExhausted || s == StateFatal
}
