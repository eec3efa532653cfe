package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/utils"
)

var (
	// ErrUnreachable means the wrist target lies outside the annulus the two
	// arm links can cover.
	ErrUnreachable = errors.New("target is out of reach")

	// ErrDegenerate means the target sits on a singularity where one of the
	// joint angles is undefined.
	ErrDegenerate = errors.New("target is at a singular configuration")
)

// inverseKinematics finds joint angles that put the finger of k at its
// requested position and orientation. k is only modified on success.
//
// The elbow is always placed on the side of the shoulder-wrist line given by
// (facing x up) x shoulderToWrist; the other branch is never considered.
func inverseKinematics(g Geometry, k *Keyframe) error {
	eps := g.Epsilon

	forward := k.FingerForward.Normalize()
	if forward.Norm2() < eps {
		return errors.Wrap(ErrDegenerate, "finger forward vector is zero")
	}

	// step back from the finger to the wrist
	wrist := k.FingerPosition.Sub(forward.Mul(g.ToolOffset()))
	shoulder := r3.Vector{Z: g.ShoulderHeight()}

	if math.Hypot(wrist.X, wrist.Y) < eps {
		// No bearing to the wrist, so the base angle is undefined.
		return errors.Wrapf(ErrDegenerate, "wrist (%.3f, %.3f, %.3f) is directly above or below the shoulder",
			wrist.X, wrist.Y, wrist.Z)
	}
	plane := newArmPlane(r3.Vector{X: wrist.X, Y: wrist.Y}.Normalize())

	// Circle-circle intersection, http://mathworld.wolfram.com/Circle-CircleIntersection.html
	// x = (dd - rr + RR) / (2d)
	toWrist := wrist.Sub(shoulder)
	d := toWrist.Norm()
	bigR := g.ShoulderToElbow()
	r := g.ElbowToWrist
	if d > bigR+r {
		return errors.Wrapf(ErrUnreachable, "wrist is %.3f from the shoulder, reach is %.3f", d, bigR+r)
	}
	x := (d*d - r*r + bigR*bigR) / (2 * d)
	if x > bigR || x < -bigR {
		return errors.Wrapf(ErrUnreachable, "no elbow position for wrist distance %.3f", d)
	}
	a := math.Sqrt(bigR*bigR - x*x)

	dir := toWrist.Mul(1 / d)
	planarRight := plane.facing.Cross(axisZ)
	elbow := shoulder.Add(dir.Mul(x)).Add(planarRight.Cross(dir).Mul(a))

	upperArm := elbow.Sub(shoulder).Normalize()
	forearm := wrist.Sub(elbow).Normalize()

	// project the finger direction onto the plane orthogonal to the forearm
	along := forearm.Dot(forward)
	if math.Abs(along) >= 1-eps {
		return errors.Wrap(ErrDegenerate, "finger forward is parallel to the forearm")
	}
	bendDir := forward.Sub(forearm.Mul(along)).Normalize()
	bendAxis := forearm.Cross(bendDir).Normalize()

	right := k.FingerRight.Sub(forward.Mul(forward.Dot(k.FingerRight)))
	if right.Norm() < eps {
		return errors.Wrap(ErrDegenerate, "finger right is parallel to finger forward")
	}
	right = right.Normalize()

	var angles [NumJoints]float64
	angles[JointF] = WrapDegrees(utils.RadToDeg(math.Atan2(plane.facing.Y, plane.facing.X)))
	angles[JointE] = signedAngle(axisZ, upperArm, plane.lateral)
	angles[JointD] = signedAngle(upperArm, forearm, plane.lateral)
	angles[JointC] = signedAngle(plane.lateral, bendAxis, forearm)
	angles[JointB] = signedAngle(forearm, forward, bendAxis)
	angles[JointA] = signedAngle(bendAxis, right, forward)

	k.Angles = angles
	k.FingerForward = forward
	k.FingerRight = right
	k.IK = IKJoints{
		Base:     r3.Vector{},
		Shoulder: shoulder,
		Elbow:    elbow,
		Wrist:    wrist,
	}
	return nil
}
