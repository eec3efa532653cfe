package kinematics

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/rdk/utils"
)

// Model names accepted by NewModel.
const (
	ModelMantis        = "mantis"
	ModelMantisGripper = "mantis-gripper"
)

// gripperLength is how far the gripper attachment moves the finger tip past
// the bare tool flange.
const gripperLength = 6.5

// roundTripTolerance is the largest joint angle error, in degrees, accepted
// when checking that a model's home pose survives FK followed by IK.
const roundTripTolerance = 1e-3

// Model is an arm model: its geometry, limits and solvers.
type Model interface {
	Name() string
	DisplayName() string
	Geometry() Geometry
	Limits() Limits

	// Forward fills the finger pose and FK joint positions of k from its
	// angles. It never fails.
	Forward(k *Keyframe)

	// Inverse fills the angles of k from its finger pose. k is left untouched
	// when it returns an error.
	Inverse(k *Keyframe) error

	// Calibration maps solver angles onto the controller's angles.
	Calibration() Calibration

	// StatusJoints lists the joints the hardware reports in status lines.
	StatusJoints() []Joint

	// Home returns the rest configuration with its finger pose filled in.
	Home() Keyframe
}

// ModelNames lists the models NewModel can build.
func ModelNames() []string {
	return []string{ModelMantis, ModelMantisGripper}
}

// HomeAngles is the rest configuration of the Mantis: upper arm leaning 30
// degrees forward, forearm square to it and the finger pointing straight down.
var HomeAngles = [NumJoints]float64{
	JointA: 0,
	JointB: 60,
	JointC: 0,
	JointD: 90,
	JointE: 30,
	JointF: 0,
}

type mantis struct {
	name        string
	displayName string
	geometry    Geometry
	limits      Limits
	calibration Calibration
}

// NewModel builds the named model. geometry and limits override the model
// defaults when non-nil.
func NewModel(name string, geometry *Geometry, limits *Limits) (Model, error) {
	m := &mantis{
		name:        name,
		displayName: "Mantis 6DOF arm",
		geometry:    DefaultMantisGeometry(),
		limits:      DefaultMantisLimits(),
		calibration: DefaultMantisCalibration(),
	}
	switch name {
	case ModelMantis:
	case ModelMantisGripper:
		m.geometry.ToolLength = gripperLength
		m.displayName = "Mantis 6DOF arm with gripper"
	default:
		return nil, fmt.Errorf("unknown arm model %q, expected one of %v", name, ModelNames())
	}
	if geometry != nil {
		m.geometry = *geometry
	}
	if limits != nil {
		m.limits = *limits
	}
	if err := m.geometry.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model %s", name)
	}
	if err := m.limits.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model %s", name)
	}
	if err := m.checkHome(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *mantis) Name() string        { return m.name }
func (m *mantis) DisplayName() string { return m.displayName }
func (m *mantis) Geometry() Geometry  { return m.geometry }
func (m *mantis) Limits() Limits      { return m.limits }

func (m *mantis) Calibration() Calibration { return m.calibration }

func (m *mantis) Forward(k *Keyframe) {
	forwardKinematics(m.geometry, k)
}

func (m *mantis) Inverse(k *Keyframe) error {
	return inverseKinematics(m.geometry, k)
}

// The Mantis reports the five arm joints; the base angle is not echoed.
func (m *mantis) StatusJoints() []Joint {
	return []Joint{JointA, JointB, JointC, JointD, JointE}
}

func (m *mantis) Home() Keyframe {
	k := NewKeyframe()
	k.Angles = HomeAngles
	m.Forward(&k)
	return k
}

// checkHome makes sure the solvers agree with each other at the home pose.
func (m *mantis) checkHome() error {
	home := m.Home()
	solved := home
	if err := m.Inverse(&solved); err != nil {
		return errors.Wrap(err, "home pose has no IK solution")
	}
	for _, j := range Joints {
		if !utils.Float64AlmostEqual(WrapDegrees(home.Angles[j]-solved.Angles[j]), 0, roundTripTolerance) {
			return fmt.Errorf("home pose does not round trip: joint %s is %.4f after IK, want %.4f",
				j, solved.Angles[j], home.Angles[j])
		}
	}
	return nil
}
