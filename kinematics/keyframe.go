package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils"
)

// Base-local axes used for orientation jogs. Base right points along -Y so
// that ToWorld maps the local frame onto the world unchanged when the base
// has no pan or tilt.
var (
	BaseForwardAxis = axisX
	BaseRightAxis   = r3.Vector{Y: -1}
	BaseUpAxis      = axisZ
)

// IKJoints are the joint positions found by the last successful IK pass.
type IKJoints struct {
	Base     r3.Vector
	Shoulder r3.Vector
	Elbow    r3.Vector
	Wrist    r3.Vector
}

// FKJoints are the joint positions found by the last FK pass. They describe
// the same chain as IKJoints but are computed independently.
type FKJoints struct {
	Shoulder r3.Vector
	Boom     r3.Vector
	Elbow    r3.Vector
	Wrist    r3.Vector
}

// Keyframe is one complete arm configuration. It only holds values, so a plain
// assignment is a deep copy.
type Keyframe struct {
	// Joint angles in degrees, indexed by Joint.
	Angles [NumJoints]float64

	// Finger pose relative to the base anchor. Up is FingerForward x FingerRight.
	FingerPosition r3.Vector
	FingerForward  r3.Vector
	FingerRight    r3.Vector

	// Accumulated orientation jog angles in degrees.
	OrientU float64
	OrientV float64
	OrientW float64

	// Base frame placement in the world.
	BasePan     float64
	BaseTilt    float64
	BaseForward r3.Vector
	BaseRight   r3.Vector
	BaseUp      r3.Vector
	Anchor      r3.Vector

	IK IKJoints
	FK FKJoints
}

// NewKeyframe returns a keyframe with a level, unrotated base.
func NewKeyframe() Keyframe {
	var k Keyframe
	k.SetBase(0, 0)
	return k
}

// CopyFrom overwrites k with other.
func (k *Keyframe) CopyFrom(other *Keyframe) {
	*k = *other
}

// Angle returns the angle of joint j in degrees.
func (k Keyframe) Angle(j Joint) float64 {
	return k.Angles[j]
}

// SetAngle sets the angle of joint j in degrees.
func (k *Keyframe) SetAngle(j Joint, degrees float64) {
	k.Angles[j] = degrees
}

// FingerUp derives the finger up vector.
func (k Keyframe) FingerUp() r3.Vector {
	return k.FingerForward.Cross(k.FingerRight)
}

// SetBase points the base with the given pan and tilt in degrees and derives
// its forward, right and up vectors.
func (k *Keyframe) SetBase(pan, tilt float64) {
	p, t := utils.DegToRad(pan), utils.DegToRad(tilt)
	k.BasePan = pan
	k.BaseTilt = tilt
	k.BaseForward = r3.Vector{
		X: math.Cos(p) * math.Cos(t),
		Y: math.Sin(p) * math.Cos(t),
		Z: math.Sin(t),
	}.Normalize()
	up := axisZ
	k.BaseRight = k.BaseForward.Cross(up).Normalize()
	k.BaseUp = k.BaseRight.Cross(k.BaseForward).Normalize()
}

// RotateFinger turns the finger orientation by three successive rotations
// around the fixed base axes: du around forward, then dv around right, then
// dw around up. The accumulated angles are display only: they count the
// orientation jogs since the last ClearOrientation and are never solved from.
func (k *Keyframe) RotateFinger(du, dv, dw float64) {
	k.OrientU += du
	k.OrientV += dv
	k.OrientW += dw

	forward, right := k.FingerForward, k.FingerRight
	for _, step := range []struct {
		axis    r3.Vector
		degrees float64
	}{
		{BaseForwardAxis, du},
		{BaseRightAxis, dv},
		{BaseUpAxis, dw},
	} {
		if step.degrees == 0 {
			continue
		}
		forward = rotateAroundAxis(forward, step.axis, step.degrees)
		right = rotateAroundAxis(right, step.axis, step.degrees)
	}
	k.FingerForward = forward.Normalize()
	k.FingerRight = right.Normalize()
}

// ClearOrientation zeroes the accumulated orientation jog angles. Moves that
// set the joints directly make them meaningless.
func (k *Keyframe) ClearOrientation() {
	k.OrientU, k.OrientV, k.OrientW = 0, 0, 0
}

// ToWorld maps a point from the base-local frame into the world.
func (k Keyframe) ToWorld(local r3.Vector) r3.Vector {
	return k.Anchor.Add(k.toWorldDirection(local))
}

func (k Keyframe) toWorldDirection(local r3.Vector) r3.Vector {
	return k.BaseForward.Mul(local.X).
		Add(k.BaseRight.Mul(-local.Y)).
		Add(k.BaseUp.Mul(local.Z))
}

// FingerWorldPose returns the finger pose in world coordinates. The
// orientation's Z axis is the finger forward vector and its X axis the finger
// right vector.
func (k Keyframe) FingerWorldPose() (spatialmath.Pose, error) {
	return fingerPose(k.ToWorld(k.FingerPosition), k.toWorldDirection(k.FingerForward), k.toWorldDirection(k.FingerRight))
}

// FingerLocalPose is FingerWorldPose relative to the base anchor, ignoring
// where the base is placed.
func (k Keyframe) FingerLocalPose() (spatialmath.Pose, error) {
	return fingerPose(k.FingerPosition, k.FingerForward, k.FingerRight)
}

func fingerPose(position, forward, right r3.Vector) (spatialmath.Pose, error) {
	x := right.Normalize()
	z := forward.Normalize()
	y := z.Cross(x)
	rm, err := spatialmath.NewRotationMatrix([]float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	})
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPose(position, rm), nil
}
