package mantis_arm

import (
	"fmt"
	"strings"

	"mantis_arm/kinematics"
)

// CartesianAxis names one finger jog direction. X, Y and Z translate the
// finger; U, V and W turn it around the base forward, right and up axes.
type CartesianAxis int

const (
	AxisX CartesianAxis = iota
	AxisY
	AxisZ
	AxisU
	AxisV
	AxisW
)

// NumCartesianAxes is the number of Cartesian jog slots.
const NumCartesianAxes = 6

var cartesianAxisNames = [NumCartesianAxes]string{"X", "Y", "Z", "U", "V", "W"}

func (a CartesianAxis) String() string {
	if a < 0 || a >= NumCartesianAxes {
		return fmt.Sprintf("CartesianAxis(%d)", int(a))
	}
	return cartesianAxisNames[a]
}

// ParseCartesianAxis accepts X, Y, Z, U, V or W in either case.
func ParseCartesianAxis(name string) (CartesianAxis, bool) {
	name = strings.ToUpper(name)
	for i, n := range cartesianAxisNames {
		if name == n {
			return CartesianAxis(i), true
		}
	}
	return 0, false
}

// Mode says which solver path a cycle takes.
type Mode int

const (
	ModeIdle Mode = iota
	ModeFK
	ModeIK
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeFK:
		return "fk"
	case ModeIK:
		return "ik"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// JogIntent holds the deltas requested since the last cycle. Angular and
// Cartesian deltas are never both set.
type JogIntent struct {
	Angular   [kinematics.NumJoints]float64
	Cartesian [NumCartesianAxes]float64
}

// Mode is derived from which set of deltas is non-zero.
func (in JogIntent) Mode() Mode {
	for _, v := range in.Angular {
		if v != 0 {
			return ModeFK
		}
	}
	for _, v := range in.Cartesian {
		if v != 0 {
			return ModeIK
		}
	}
	return ModeIdle
}

// SetAngular adds delta to joint j and clears any Cartesian request.
func (in *JogIntent) SetAngular(j kinematics.Joint, delta float64) {
	in.Cartesian = [NumCartesianAxes]float64{}
	in.Angular[j] += delta
}

// SetCartesian adds delta to axis a and clears any angular request.
func (in *JogIntent) SetCartesian(a CartesianAxis, delta float64) {
	in.Angular = [kinematics.NumJoints]float64{}
	in.Cartesian[a] += delta
}

// Reset zeroes every delta.
func (in *JogIntent) Reset() {
	*in = JogIntent{}
}
