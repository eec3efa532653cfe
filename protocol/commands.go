// Package protocol formats the command lines sent to a Mantis controller and
// classifies the lines it sends back.
package protocol

import (
	"math"
	"strconv"
	"strings"

	"mantis_arm/kinematics"
)

// Outbound commands.
const (
	// MoveCommand prefixes a joint move, followed by " <Letter><degrees>" for
	// every joint that changed.
	MoveCommand = "R0"
	// ReadyCommand tells the controller the host is listening.
	ReadyCommand = "R1"
	// AbsoluteMode makes move values absolute angles.
	AbsoluteMode = "G90"
	// RelativeMode makes move values offsets from the last position.
	RelativeMode = "G91"
	// SetUIDCommand prefixes a newly issued robot ID.
	SetUIDCommand = "UID"
)

// RoundOff rounds v to three decimal places, the precision used on the wire.
func RoundOff(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		// drop the sign of negative zero
		return 0
	}
	return r
}

// FormatValue renders a wire value with trailing zeros trimmed.
func FormatValue(v float64) string {
	return strconv.FormatFloat(RoundOff(v), 'f', -1, 64)
}

// FormatDiff builds the move line that takes the machine from prev to next.
// Only joints whose rounded value differs are listed, in joint order. It
// returns false when nothing changed.
func FormatDiff(prev, next [kinematics.NumJoints]float64) (string, bool) {
	var sb strings.Builder
	sb.WriteString(MoveCommand)
	changed := false
	for _, j := range kinematics.Joints {
		if RoundOff(prev[j]) == RoundOff(next[j]) {
			continue
		}
		changed = true
		sb.WriteByte(' ')
		sb.WriteByte(j.Letter())
		sb.WriteString(FormatValue(next[j]))
	}
	if !changed {
		return "", false
	}
	return sb.String(), true
}

// FormatUID builds the line that stores id on the controller.
func FormatUID(id int64) string {
	return SetUIDCommand + " " + strconv.FormatInt(id, 10)
}
