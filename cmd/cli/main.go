package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	mantis "mantis_arm"
	"mantis_arm/kinematics"
)

const (
	flagDebug   = "debug"
	flagModel   = "model"
	flagConfig  = "config"
	flagForward = "forward"
	flagRight   = "right"
)

func main() {
	err := realMain(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func realMain(args []string) error {
	logger := logging.NewLogger("mantis-cli")

	app := &cli.App{
		Name:  "mantis",
		Usage: "drive and inspect a Mantis 6DOF arm",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Value: kinematics.ModelMantis,
				Usage: "kinematic model to use (" + strings.Join(kinematics.ModelNames(), ", ") + ")",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "discover",
				Usage: "list serial ports that look like a controller",
				Action: func(c *cli.Context) error {
					return discoverAction(c, logger)
				},
			},
			{
				Name:      "fk",
				Usage:     "print the finger pose for six joint angles",
				ArgsUsage: "A B C D E F",
				Action:    fkAction,
			},
			{
				Name:      "ik",
				Usage:     "print the joint angles that put the finger at a pose",
				ArgsUsage: "X Y Z",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagForward,
						Value: "0,0,-1",
						Usage: "finger forward direction as `X,Y,Z`",
					},
					&cli.StringFlag{
						Name:  flagRight,
						Value: "0,1,0",
						Usage: "finger right direction as `X,Y,Z`",
					},
				},
				Action: ikAction,
			},
			{
				Name:  "run",
				Usage: "connect to an arm and jog it from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE` (.json or .toml)",
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
		},
	}
	return app.Run(args)
}

func discoverAction(c *cli.Context, logger logging.Logger) error {
	ports, err := mantis.DiscoverPorts(logger)
	if err != nil {
		return errors.Wrap(err, "could not list serial ports")
	}
	if len(ports) == 0 {
		fmt.Fprintln(c.App.Writer, "no candidate ports found")
		return nil
	}
	for _, p := range ports {
		if p.USB {
			fmt.Fprintf(c.App.Writer, "%s\t%s\tusb %s:%s serial %s\n", p.Path, p.Suffix, p.VID, p.PID, p.Serial)
		} else {
			fmt.Fprintf(c.App.Writer, "%s\t%s\n", p.Path, p.Suffix)
		}
	}
	return nil
}

func fkAction(c *cli.Context) error {
	if c.Args().Len() != kinematics.NumJoints {
		return errors.Errorf("expected %d joint angles, got %d", kinematics.NumJoints, c.Args().Len())
	}
	model, err := kinematics.NewModel(c.String(flagModel), nil, nil)
	if err != nil {
		return err
	}
	k := kinematics.NewKeyframe()
	for i, arg := range c.Args().Slice() {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return errors.Wrapf(err, "bad angle for joint %s", kinematics.Joint(i))
		}
		k.Angles[i] = v
	}
	limited, verdict, err := model.Limits().Enforce(k)
	if err != nil {
		return err
	}
	if verdict == kinematics.Clamped {
		fmt.Fprintln(c.App.ErrWriter, "angles were clamped to the joint limits")
	}
	model.Forward(&limited)
	return printKeyframe(c.App.Writer, &limited)
}

func ikAction(c *cli.Context) error {
	if c.Args().Len() != 3 {
		return errors.Errorf("expected X Y Z, got %d values", c.Args().Len())
	}
	model, err := kinematics.NewModel(c.String(flagModel), nil, nil)
	if err != nil {
		return err
	}
	var xyz [3]float64
	for i, arg := range c.Args().Slice() {
		if xyz[i], err = strconv.ParseFloat(arg, 64); err != nil {
			return errors.Wrapf(err, "bad coordinate %q", arg)
		}
	}
	forward, err := parseVector(c.String(flagForward))
	if err != nil {
		return errors.Wrap(err, "bad --forward")
	}
	right, err := parseVector(c.String(flagRight))
	if err != nil {
		return errors.Wrap(err, "bad --right")
	}

	k := kinematics.NewKeyframe()
	k.FingerPosition = r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	k.FingerForward = forward.Normalize()
	k.FingerRight = right.Normalize()
	if err := model.Inverse(&k); err != nil {
		return err
	}
	limited, verdict, err := model.Limits().Enforce(k)
	if err != nil {
		return err
	}
	if verdict == kinematics.Clamped {
		fmt.Fprintln(c.App.ErrWriter, "solution was clamped to the joint limits, the finger will not reach the requested pose")
		model.Forward(&limited)
	}
	return printKeyframe(c.App.Writer, &limited)
}

func runAction(c *cli.Context, logger logging.Logger) error {
	cfg, err := mantis.LoadConfig(c.String(flagConfig))
	if err != nil {
		return err
	}
	if c.IsSet(flagModel) {
		cfg.Model = c.String(flagModel)
	}

	link, err := mantis.GetSharedLink(cfg, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(func() error { return mantis.ReleaseSharedLink(cfg.Port) })

	a, err := mantis.NewArmFromConfig(cfg, link, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(a.Close)
	link.Start(a)

	period := time.Second / time.Duration(cfg.CycleRate)
	workers := utils.NewBackgroundStoppableWorkers()
	workers.Add(func(ctx context.Context) { a.Run(ctx, period) })
	defer workers.Stop()

	logger.Infof("Connected to %s, waiting for the controller greeting", cfg.Port)
	return repl(c.App.Reader, c.App.Writer, a)
}

// repl reads operator commands until quit or end of input.
func repl(in io.Reader, out io.Writer, a *mantis.Arm) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			quit, err := runCommand(out, a, fields)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func runCommand(out io.Writer, a *mantis.Arm, fields []string) (bool, error) {
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true, nil
	case "jog":
		if len(fields) != 3 {
			return false, errors.New("usage: jog <A-F|X|Y|Z|U|V|W> <delta>")
		}
		delta, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return false, errors.Wrap(err, "bad delta")
		}
		name := strings.ToUpper(fields[1])
		if len(name) == 1 {
			if j, ok := kinematics.ParseJoint(name[0]); ok {
				a.JogJoint(j, delta)
				return false, nil
			}
		}
		axis, ok := mantis.ParseCartesianAxis(name)
		if !ok {
			return false, errors.Errorf("unknown axis %q", fields[1])
		}
		a.JogCartesian(axis, delta)
		return false, nil
	case "speed":
		if len(fields) == 1 {
			fmt.Fprintf(out, "speed %g\n", a.Speed())
			return false, nil
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, errors.Wrap(err, "bad speed")
		}
		return false, a.SetSpeed(v)
	case "abs":
		return false, a.SetAbsoluteMode()
	case "rel":
		return false, a.SetRelativeMode()
	case "pose":
		k := a.Display()
		fmt.Fprintf(out, "%s connected=%t\n", a.DisplayName(), a.Connected())
		return false, printKeyframe(out, &k)
	default:
		return false, errors.Errorf("unknown command %q (jog, speed, abs, rel, pose, quit)", fields[0])
	}
}

func printKeyframe(out io.Writer, k *kinematics.Keyframe) error {
	var angles []string
	for _, j := range kinematics.Joints {
		angles = append(angles, fmt.Sprintf("%s%.3f", j, k.Angle(j)))
	}
	fmt.Fprintln(out, "angles: ", strings.Join(angles, " "))
	fmt.Fprintf(out, "finger:  %.3f %.3f %.3f\n", k.FingerPosition.X, k.FingerPosition.Y, k.FingerPosition.Z)
	fmt.Fprintf(out, "forward: %.3f %.3f %.3f\n", k.FingerForward.X, k.FingerForward.Y, k.FingerForward.Z)
	fmt.Fprintf(out, "right:   %.3f %.3f %.3f\n", k.FingerRight.X, k.FingerRight.Y, k.FingerRight.Z)

	pose, err := k.FingerWorldPose()
	if err != nil {
		return err
	}
	ov := pose.Orientation().OrientationVectorDegrees()
	fmt.Fprintf(out, "world:   %v ov (%.3f %.3f %.3f) theta %.3f\n", pose.Point(), ov.OX, ov.OY, ov.OZ, ov.Theta)
	return nil
}

func parseVector(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, errors.Errorf("expected three comma separated values, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vector{}, err
		}
		v[i] = f
	}
	vec := r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	if vec.Norm() == 0 {
		return r3.Vector{}, errors.New("direction must not be zero")
	}
	return vec, nil
}
