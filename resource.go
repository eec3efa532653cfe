package mantis_arm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	"mantis_arm/kinematics"
)

// MantisModel is the arm component model served by cmd/module.
var MantisModel = resource.NewModel("devrel", "arm", "mantis")

// moveStepPause separates the steps of MoveThroughJointPositions.
const moveStepPause = 100 * time.Millisecond

func init() {
	resource.RegisterComponent(arm.API, MantisModel,
		resource.Registration[arm.Arm, *MantisConfig]{
			Constructor: newArmComponent,
		},
	)
}

// armComponent exposes an Arm as an arm component. Joint positions are the
// frame model inputs, base first, and poses are in millimeters relative to
// the base anchor.
type armComponent struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	mantis *Arm
	model  referenceframe.Model

	// release gives back the serial link, nil when there is none.
	release func() error
	workers *goutils.StoppableWorkers
}

func newArmComponent(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (arm.Arm, error) {
	conf, err := resource.NativeConfig[*MantisConfig](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger

	link, err := GetSharedLink(conf, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", conf.Port, err)
	}
	release := func() error { return ReleaseSharedLink(conf.Port) }

	a, err := NewArmFromConfig(conf, link, logger)
	if err != nil {
		return nil, multierr.Combine(err, release())
	}
	c, err := newComponent(rawConf.ResourceName(), a, logger)
	if err != nil {
		return nil, multierr.Combine(err, a.Close(), release())
	}
	c.release = release
	link.Start(a)

	period := time.Second / time.Duration(conf.CycleRate)
	c.workers.Add(func(ctx context.Context) { a.Run(ctx, period) })

	logger.Infof("%s on %s, waiting for the controller greeting", a.Model().DisplayName(), conf.Port)
	return c, nil
}

// newComponent wraps a. The caller starts the update loop.
func newComponent(name resource.Name, a *Arm, logger logging.Logger) (*armComponent, error) {
	model, err := kinematics.FrameModel(a.Model())
	if err != nil {
		return nil, fmt.Errorf("failed to create frame model: %w", err)
	}
	return &armComponent{
		name:    name,
		logger:  logger,
		mantis:  a,
		model:   model,
		workers: goutils.NewBackgroundStoppableWorkers(),
	}, nil
}

func (c *armComponent) Name() resource.Name {
	return c.name
}

func (c *armComponent) Close(context.Context) error {
	c.workers.Stop()
	err := c.mantis.Close()
	if c.release != nil {
		err = multierr.Combine(err, c.release())
	}
	return err
}

func (c *armComponent) EndPosition(ctx context.Context, extra map[string]interface{}) (spatialmath.Pose, error) {
	k := c.mantis.Current()
	pose, err := k.FingerLocalPose()
	if err != nil {
		return nil, fmt.Errorf("failed to compute end position: %w", err)
	}
	return spatialmath.NewPose(pose.Point().Mul(kinematics.MillimetersPerUnit), pose.Orientation()), nil
}

func (c *armComponent) MoveToPosition(ctx context.Context, pose spatialmath.Pose, extra map[string]interface{}) error {
	origin := pose.Point()
	axis := func(local r3.Vector) r3.Vector {
		return spatialmath.Compose(pose, spatialmath.NewPoseFromPoint(local)).Point().Sub(origin)
	}
	out := c.mantis.MoveFingerTo(origin.Mul(1/kinematics.MillimetersPerUnit), axis(r3.Vector{Z: 1}), axis(r3.Vector{X: 1}))
	if out.Result == ResultRejected {
		return errors.Wrap(out.Err, "cannot reach pose")
	}
	return nil
}

func (c *armComponent) MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error {
	angles, err := kinematics.AnglesFromInputs(positions)
	if err != nil {
		return err
	}
	out := c.mantis.MoveToJoints(angles)
	switch {
	case out.Result == ResultRejected:
		return errors.Wrap(out.Err, "cannot move to joint positions")
	case out.Verdict == kinematics.Clamped:
		c.logger.Warnf("joint positions %v clamped to %v", angles, c.mantis.Display().Angles)
	}
	return nil
}

func (c *armComponent) MoveThroughJointPositions(ctx context.Context, positions [][]referenceframe.Input, options *arm.MoveOptions, extra map[string]interface{}) error {
	for i, step := range positions {
		if i > 0 && !goutils.SelectContextOrWait(ctx, moveStepPause) {
			return ctx.Err()
		}
		if err := c.MoveToJointPositions(ctx, step, extra); err != nil {
			return err
		}
	}
	return nil
}

func (c *armComponent) JointPositions(ctx context.Context, extra map[string]interface{}) ([]referenceframe.Input, error) {
	return kinematics.FrameInputs(c.mantis.Current().Angles), nil
}

func (c *armComponent) Stop(ctx context.Context, extra map[string]interface{}) error {
	c.mantis.Stop()
	return nil
}

func (c *armComponent) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	return c.model, nil
}

func (c *armComponent) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	return c.JointPositions(ctx, nil)
}

func (c *armComponent) GoToInputs(ctx context.Context, inputSteps ...[]referenceframe.Input) error {
	return c.MoveThroughJointPositions(ctx, inputSteps, nil, nil)
}

// DoCommand accepts jogs and mode changes:
//
//	{"command": "jog", "axis": "B", "delta": 1}
//	{"command": "set_speed", "speed": 0.5}
//	{"command": "absolute_mode"} / {"command": "relative_mode"}
//	{"command": "status"}
func (c *armComponent) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "jog":
		name, ok := cmd["axis"].(string)
		if !ok {
			return nil, errors.New("jog command requires an 'axis' string")
		}
		delta, ok := cmd["delta"].(float64)
		if !ok {
			return nil, errors.New("jog command requires a 'delta' number")
		}
		upper := strings.ToUpper(name)
		if len(upper) == 1 {
			if j, ok := kinematics.ParseJoint(upper[0]); ok {
				c.mantis.JogJoint(j, delta)
				return map[string]interface{}{"mode": ModeFK.String()}, nil
			}
		}
		axis, ok := ParseCartesianAxis(upper)
		if !ok {
			return nil, fmt.Errorf("unknown jog axis %q", name)
		}
		c.mantis.JogCartesian(axis, delta)
		return map[string]interface{}{"mode": ModeIK.String()}, nil

	case "set_speed":
		speed, ok := cmd["speed"].(float64)
		if !ok {
			return nil, errors.New("set_speed command requires a 'speed' number")
		}
		if err := c.mantis.SetSpeed(speed); err != nil {
			return nil, err
		}
		return map[string]interface{}{"speed": speed}, nil

	case "absolute_mode":
		return map[string]interface{}{"success": true}, c.mantis.SetAbsoluteMode()

	case "relative_mode":
		return map[string]interface{}{"success": true}, c.mantis.SetRelativeMode()

	case "status":
		k := c.mantis.Display()
		angles := map[string]interface{}{}
		for _, j := range kinematics.Joints {
			angles[j.String()] = k.Angle(j)
		}
		return map[string]interface{}{
			"name":      c.mantis.DisplayName(),
			"connected": c.mantis.Connected(),
			"moving":    c.mantis.IsMoving(),
			"angles":    angles,
			"finger":    []float64{k.FingerPosition.X, k.FingerPosition.Y, k.FingerPosition.Z},
		}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (c *armComponent) IsMoving(ctx context.Context) (bool, error) {
	return c.mantis.IsMoving(), nil
}

func (c *armComponent) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	inputs, err := c.CurrentInputs(ctx)
	if err != nil {
		return nil, err
	}
	gif, err := c.model.Geometries(inputs)
	if err != nil {
		return nil, err
	}
	return gif.Geometries(), nil
}
