package kinematics

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/rdk/referenceframe"
)

// ErrJointLimit means a joint is past a hard mechanical bound.
var ErrJointLimit = errors.New("joint limit exceeded")

// JointLimit bounds one joint in degrees. Unbounded joints turn freely and are
// only wrapped into (-180, 180]. A soft bound clamps, a hard bound rejects.
type JointLimit struct {
	referenceframe.Limit
	Bounded bool
	Hard    bool
}

// Unbounded returns a limit for a joint that turns freely.
func Unbounded() JointLimit {
	return JointLimit{Limit: referenceframe.Limit{Min: -180, Max: 180}}
}

// SoftLimit returns a limit that clamps into [lo, hi].
func SoftLimit(lo, hi float64) JointLimit {
	return JointLimit{Limit: referenceframe.Limit{Min: lo, Max: hi}, Bounded: true}
}

// HardLimit returns a limit that rejects anything outside [lo, hi].
func HardLimit(lo, hi float64) JointLimit {
	return JointLimit{Limit: referenceframe.Limit{Min: lo, Max: hi}, Bounded: true, Hard: true}
}

func (l JointLimit) String() string {
	switch {
	case !l.Bounded:
		return "unbounded"
	case l.Hard:
		return fmt.Sprintf("hard [%g, %g]", l.Min, l.Max)
	default:
		return fmt.Sprintf("soft [%g, %g]", l.Min, l.Max)
	}
}

// Limits holds one JointLimit per joint.
type Limits [NumJoints]JointLimit

// DefaultMantisLimits keeps the Mantis inside the region where its single
// elbow branch and wrist convention are unambiguous.
func DefaultMantisLimits() Limits {
	return Limits{
		JointA: Unbounded(),
		JointB: SoftLimit(5, 175),
		JointC: Unbounded(),
		JointD: SoftLimit(5, 150),
		JointE: SoftLimit(0, 90),
		JointF: HardLimit(-170, 170),
	}
}

// Verdict is the outcome of enforcing limits on a keyframe.
type Verdict int

const (
	Accepted Verdict = iota
	Clamped
	Rejected
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Clamped:
		return "clamped"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Validate checks that every bounded limit has Min <= Max.
func (l Limits) Validate() error {
	for _, j := range Joints {
		if l[j].Bounded && l[j].Min > l[j].Max {
			return fmt.Errorf("joint %s: min %g is above max %g", j, l[j].Min, l[j].Max)
		}
	}
	return nil
}

// Enforce checks the angles of k against the limits. It returns the keyframe
// unchanged and Accepted, a copy with out-of-range soft joints clamped (and
// free joints wrapped) and Clamped, or Rejected with an error wrapping
// ErrJointLimit. k itself is never modified.
func (l Limits) Enforce(k Keyframe) (Keyframe, Verdict, error) {
	verdict := Accepted
	for _, j := range Joints {
		limit := l[j]
		angle := k.Angles[j]
		if !limit.Bounded {
			if wrapped := WrapDegrees(angle); wrapped != angle {
				k.Angles[j] = wrapped
				verdict = Clamped
			}
			continue
		}
		if angle >= limit.Min && angle <= limit.Max {
			continue
		}
		if limit.Hard {
			return k, Rejected, errors.Wrapf(ErrJointLimit, "joint %s angle %.3f outside %s", j, angle, limit)
		}
		if angle < limit.Min {
			k.Angles[j] = limit.Min
		} else {
			k.Angles[j] = limit.Max
		}
		verdict = Clamped
	}
	return k, verdict, nil
}
