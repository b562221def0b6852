package boost

import (
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/netatmo"
)

// Temperature bounds applied to boost requests.
const (
	MinTemperature     = 7.0
	MaxTemperature     = 30.0
	DefaultTemperature = 21.0
)

// cycleLength is fixed: three boost durations, then a reset to schedule.
const cycleLength = 4

// durations holds the boost lengths in minutes for cycle steps 0..2.
var durations = [3]int{30, 60, 90}

// Step is one state of the boost cycle.
type Step string

const (
	StepBoost30 Step = "boost30"
	StepBoost60 Step = "boost60"
	StepBoost90 Step = "boost90"
	StepReset   Step = "reset"
)

// Decision is the room-state change realizing one boost invocation.
// Temperature and EndTime are nil on the reset step.
type Decision struct {
	Step            Step
	Mode            string
	Temperature     *float64
	EndTime         *int64 // UNIX seconds
	DurationMinutes int    // 0 on reset
}

// Decide computes the boost decision for a call index. It is pure: the side
// effect of applying the decision belongs to the caller, and the counter
// advance belongs to the storage layer.
//
// Cycle: index mod 4 -> 30 min, 60 min, 90 min boost, then reset to the
// home schedule. The requested temperature is clamped to [7, 30] and
// defaults to 21 when absent.
func Decide(callIndex int64, requested *float64, now time.Time) Decision {
	step := callIndex % cycleLength

	if step == cycleLength-1 {
		return Decision{
			Step: StepReset,
			Mode: netatmo.ModeHome,
		}
	}

	temp := DefaultTemperature
	if requested != nil {
		temp = clamp(*requested)
	}

	minutes := durations[step]
	endTime := now.Unix() + int64(minutes)*60

	return Decision{
		Step:            [3]Step{StepBoost30, StepBoost60, StepBoost90}[step],
		Mode:            netatmo.ModeManual,
		Temperature:     &temp,
		EndTime:         &endTime,
		DurationMinutes: minutes,
	}
}

func clamp(t float64) float64 {
	if t < MinTemperature {
		return MinTemperature
	}
	if t > MaxTemperature {
		return MaxTemperature
	}
	return t
}
