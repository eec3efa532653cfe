package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/utils"
)

// armPlane is the vertical working plane of the arm for one base angle.
type armPlane struct {
	facing  r3.Vector // horizontal direction the arm reaches toward
	lateral r3.Vector // plane normal, up x facing
}

func newArmPlane(facing r3.Vector) armPlane {
	return armPlane{
		facing:  facing,
		lateral: axisZ.Cross(facing).Normalize(),
	}
}

// forwardKinematics computes the finger pose from the joint angles of k. Each
// link direction is the previous one turned around an axis perpendicular to
// it, so the wrist gets its own roll basis instead of inheriting it from a
// matrix chain.
func forwardKinematics(g Geometry, k *Keyframe) {
	f := utils.DegToRad(k.Angles[JointF])
	plane := newArmPlane(r3.Vector{X: math.Cos(f), Y: math.Sin(f)})
	shoulder := r3.Vector{Z: g.ShoulderHeight()}

	// upper arm leans from vertical toward the facing direction
	upperArm := rotateAroundAxis(axisZ, plane.lateral, k.Angles[JointE])
	boom := shoulder.Add(upperArm.Mul(g.ShoulderToBoom))
	elbow := shoulder.Add(upperArm.Mul(g.ShoulderToElbow()))

	forearm := rotateAroundAxis(upperArm, plane.lateral, k.Angles[JointD]).Normalize()
	wrist := elbow.Add(forearm.Mul(g.ElbowToWrist))

	// forearm roll turns the wrist bend axis
	bendAxis := rotateAroundAxis(plane.lateral, forearm, k.Angles[JointC]).Normalize()
	forward := rotateAroundAxis(forearm, bendAxis, k.Angles[JointB]).Normalize()
	right := rotateAroundAxis(bendAxis, forward, k.Angles[JointA]).Normalize()

	k.FK = FKJoints{
		Shoulder: shoulder,
		Boom:     boom,
		Elbow:    elbow,
		Wrist:    wrist,
	}
	k.FingerPosition = wrist.Add(forward.Mul(g.ToolOffset()))
	k.FingerForward = forward
	k.FingerRight = right
}
