package scenario

import (
	"fmt"
	"strings"
)

// Stage is a step of the per-scenario state machine.
type Stage int

const (
	StagePending Stage = iota
	StageResetting
	StagePreloading
	StageSeeding
	StageCapturing
	StageSerializing
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StagePending:     "pending",
	StageResetting:   "resetting",
	StagePreloading:  "preloading",
	StageSeeding:     "seeding",
	StageCapturing:   "capturing",
	StageSerializing: "serializing",
	StageDone:        "done",
	StageFailed:      "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Error reports the scenario and stage where a batch stopped.
type Error struct {
	Scenario string
	Stage    Stage
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s failed while %s", e.Scenario, e.Stage)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }
