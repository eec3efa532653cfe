package kinematics

import "fmt"

// Joint identifies one axis of the arm by its command letter.
type Joint int

// The Mantis axes, named by the letter used on the wire.
const (
	JointA Joint = iota // hand rotation
	JointB              // wrist bend
	JointC              // forearm roll
	JointD              // elbow
	JointE              // shoulder
	JointF              // base
)

// NumJoints is the number of angle slots in a Keyframe.
const NumJoints = 6

// Joints lists every joint in wire order.
var Joints = [NumJoints]Joint{JointA, JointB, JointC, JointD, JointE, JointF}

// Letter returns the wire letter of the joint.
func (j Joint) Letter() byte {
	return 'A' + byte(j)
}

func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return fmt.Sprintf("Joint(%d)", int(j))
	}
	return string(j.Letter())
}

// ParseJoint maps an upper-case wire letter back to its joint.
func ParseJoint(letter byte) (Joint, bool) {
	if letter < 'A' || letter >= 'A'+NumJoints {
		return 0, false
	}
	return Joint(letter - 'A'), true
}
