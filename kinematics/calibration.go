package kinematics

// JointCalibration maps one solver angle onto the angle the controller uses:
// wire = Sign*angle + Offset.
type JointCalibration struct {
	Sign   float64
	Offset float64
}

// Calibration holds the wire mapping of every joint.
type Calibration [NumJoints]JointCalibration

// DefaultMantisCalibration returns the angle convention of the Mantis
// firmware. The base reads 180 when the arm faces +X, the shoulder reads 90
// when the upper arm stands vertical, and the hand and forearm roll are
// measured from the opposite side of the wrist.
func DefaultMantisCalibration() Calibration {
	return Calibration{
		JointA: {Sign: -1, Offset: 180},
		JointB: {Sign: 1, Offset: 0},
		JointC: {Sign: 1, Offset: 180},
		JointD: {Sign: 1, Offset: 0},
		JointE: {Sign: -1, Offset: 90},
		JointF: {Sign: 1, Offset: 180},
	}
}

// ToWire converts solver angles into controller angles.
func (c Calibration) ToWire(angles [NumJoints]float64) [NumJoints]float64 {
	var out [NumJoints]float64
	for j, v := range angles {
		out[j] = c[j].Sign*v + c[j].Offset
	}
	return out
}

// FromWire converts one controller angle back into a solver angle in
// (-180, 180].
func (c Calibration) FromWire(j Joint, wire float64) float64 {
	return WrapDegrees((wire - c[j].Offset) * c[j].Sign)
}
