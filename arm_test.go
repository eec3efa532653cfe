package mantis_arm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"mantis_arm/kinematics"
)

type recordingWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *recordingWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	return nil
}

func (w *recordingWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

type fakeIssuer struct {
	uid   int64
	err   error
	calls atomic.Int32
}

func (f *fakeIssuer) IssueUID(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return f.uid, f.err
}

const greetingZero = "HELLO WORLD! I AM AHROBOT #0"

func newTestArm(t *testing.T, issuer UIDIssuer) (*Arm, *recordingWriter) {
	t.Helper()
	model, err := kinematics.NewModel(kinematics.ModelMantis, nil, nil)
	require.NoError(t, err)
	w := &recordingWriter{}
	a, err := NewArm(model, w, issuer, logging.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, w
}

func TestNewArmStartsAtHome(t *testing.T) {
	a, w := newTestArm(t, nil)
	home := a.Model().Home()

	assert.Equal(t, home, a.Current())
	assert.Equal(t, home, a.Candidate())
	assert.Equal(t, DefaultSpeed, a.Speed())
	assert.False(t, a.Connected())
	assert.Equal(t, "Mantis 6DOF arm #0", a.DisplayName())
	assert.Empty(t, w.Lines())
}

func TestUpdateIdle(t *testing.T) {
	a, _ := newTestArm(t, nil)
	before := a.Current()

	out := a.Update()
	assert.Equal(t, ModeIdle, out.Mode)
	assert.Equal(t, ResultIdle, out.Result)
	assert.Equal(t, before, a.Current())
}

func TestJogJointCommits(t *testing.T) {
	a, w := newTestArm(t, nil)
	before := a.Current()

	a.JogJoint(kinematics.JointB, 1)
	out := a.Update()

	assert.Equal(t, ModeFK, out.Mode)
	assert.Equal(t, ResultCommitted, out.Result)
	assert.Equal(t, kinematics.Accepted, out.Verdict)
	assert.Empty(t, out.Line)

	cur := a.Current()
	assert.Equal(t, 62.0, cur.Angles[kinematics.JointB])
	assert.NotEqual(t, before.FingerPosition, cur.FingerPosition, "finger pose must follow the angles")
	assert.Equal(t, cur, a.Candidate())
	assert.Empty(t, w.Lines(), "nothing is sent before the controller greets us")
}

func TestJogCartesianCommits(t *testing.T) {
	a, _ := newTestArm(t, nil)
	before := a.Current()

	a.JogCartesian(AxisX, 1)
	out := a.Update()
	require.Equal(t, ResultCommitted, out.Result)
	assert.Equal(t, ModeIK, out.Mode)

	cur := a.Current()
	assert.InDelta(t, before.FingerPosition.X+2, cur.FingerPosition.X, 1e-9)
	assert.InDelta(t, before.FingerPosition.Z, cur.FingerPosition.Z, 1e-9)
	want := [kinematics.NumJoints]float64{0, 62.6764, 0, 82.8491, 34.4745, 0}
	for _, j := range kinematics.Joints {
		assert.InDelta(t, want[j], cur.Angles[j], 1e-3, "joint %s", j)
	}

	// solved angles reproduce the requested pose
	check := cur
	a.Model().Forward(&check)
	assert.InDelta(t, cur.FingerPosition.X, check.FingerPosition.X, 1e-6)
	assert.InDelta(t, cur.FingerPosition.Z, check.FingerPosition.Z, 1e-6)
}

func TestJogOrientation(t *testing.T) {
	a, _ := newTestArm(t, nil)
	before := a.Current()

	a.JogCartesian(AxisV, 5)
	out := a.Update()
	require.Equal(t, ResultCommitted, out.Result, "%v", out.Err)

	cur := a.Current()
	assert.InDelta(t, 10, cur.OrientV, 1e-9)
	assert.InDelta(t, 0, cur.FingerPosition.Sub(before.FingerPosition).Norm(), 1e-9)
	assert.InDelta(t, 10, before.FingerForward.Angle(cur.FingerForward).Degrees(), 1e-6)

	// a joint move makes the accumulated orientation meaningless
	a.JogJoint(kinematics.JointB, 1)
	out = a.Update()
	require.Equal(t, ResultCommitted, out.Result, "%v", out.Err)
	assert.Zero(t, a.Current().OrientV)
}

func TestModeExclusivity(t *testing.T) {
	a, _ := newTestArm(t, nil)

	a.JogJoint(kinematics.JointA, 1)
	a.JogCartesian(AxisY, 1)
	in := a.Intent()
	assert.Equal(t, ModeIK, in.Mode())
	assert.Equal(t, [kinematics.NumJoints]float64{}, in.Angular)

	a.JogJoint(kinematics.JointC, -1)
	in = a.Intent()
	assert.Equal(t, ModeFK, in.Mode())
	assert.Equal(t, [NumCartesianAxes]float64{}, in.Cartesian)

	out := a.Update()
	assert.Equal(t, ModeFK, out.Mode)
	assert.Equal(t, ModeIdle, a.Intent().Mode(), "intent is cleared every cycle")
}

func TestRejectedMoveRestoresPose(t *testing.T) {
	tests := []struct {
		name   string
		jog    func(a *Arm)
		expect error
	}{
		{
			name:   "hard joint limit",
			jog:    func(a *Arm) { a.JogJoint(kinematics.JointF, 100) },
			expect: kinematics.ErrJointLimit,
		},
		{
			name:   "out of reach",
			jog:    func(a *Arm) { a.JogCartesian(AxisX, 20) },
			expect: kinematics.ErrUnreachable,
		},
		{
			name: "wrist above the shoulder",
			jog: func(a *Arm) {
				// the finger points straight down, so the wrist follows it onto the base axis
				a.JogCartesian(AxisX, -a.Current().FingerPosition.X/a.Speed())
			},
			expect: kinematics.ErrDegenerate,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, w := newTestArm(t, nil)
			before := a.Current()

			tc.jog(a)
			out := a.Update()

			assert.Equal(t, ResultRejected, out.Result)
			assert.Equal(t, kinematics.Rejected, out.Verdict)
			require.Error(t, out.Err)
			assert.True(t, errors.Is(out.Err, tc.expect), "got %v", out.Err)
			assert.Equal(t, before, a.Current())
			assert.Equal(t, before, a.Candidate())
			assert.Equal(t, ModeIdle, a.Intent().Mode())
			assert.Empty(t, w.Lines())
		})
	}
}

func TestClampedMoves(t *testing.T) {
	t.Run("joint jog stops at the soft limit", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		a.JogJoint(kinematics.JointE, 50)
		out := a.Update()
		assert.Equal(t, ResultCommitted, out.Result)
		assert.Equal(t, kinematics.Clamped, out.Verdict)
		assert.Equal(t, 90.0, a.Current().Angles[kinematics.JointE])
	})

	t.Run("finger pose follows clamped angles", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		requested := a.Current().FingerPosition.X - 16

		a.JogCartesian(AxisX, -8)
		out := a.Update()
		require.Equal(t, ResultCommitted, out.Result, "%v", out.Err)
		assert.Equal(t, kinematics.Clamped, out.Verdict)

		cur := a.Current()
		assert.Equal(t, 0.0, cur.Angles[kinematics.JointE])
		check := cur
		a.Model().Forward(&check)
		assert.Equal(t, check.FingerPosition, cur.FingerPosition)
		assert.Greater(t, cur.FingerPosition.X-requested, 0.1)
	})
}

func TestSpeedScalesJogs(t *testing.T) {
	a, _ := newTestArm(t, nil)
	assert.Error(t, a.SetSpeed(0))
	require.NoError(t, a.SetSpeed(0.5))

	a.JogJoint(kinematics.JointC, 4)
	a.Update()
	assert.InDelta(t, 2, a.Current().Angles[kinematics.JointC], 1e-9)
}

func TestHandshake(t *testing.T) {
	t.Run("requests an id once", func(t *testing.T) {
		issuer := &fakeIssuer{uid: 77}
		a, w := newTestArm(t, issuer)

		a.HandleLine(greetingZero)
		assert.True(t, a.Connected())
		assert.Eventually(t, func() bool { return a.RobotUID() == 77 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"G90", "R1", "UID 77"}, w.Lines())

		a.HandleLine(greetingZero)
		a.HandleLine(greetingZero)
		assert.Equal(t, []string{"G90", "R1", "UID 77"}, w.Lines())
		assert.Equal(t, int32(1), issuer.calls.Load())
		assert.Equal(t, "Mantis 6DOF arm #77", a.DisplayName())
	})

	t.Run("keeps a reported id", func(t *testing.T) {
		issuer := &fakeIssuer{uid: 77}
		a, w := newTestArm(t, issuer)

		a.HandleLine("HELLO WORLD! I AM AHROBOT #12")
		assert.Equal(t, int64(12), a.RobotUID())
		assert.Equal(t, []string{"G90", "R1"}, w.Lines())
		assert.Equal(t, int32(0), issuer.calls.Load())
	})

	t.Run("failed request leaves id zero", func(t *testing.T) {
		issuer := &fakeIssuer{err: errors.New("offline")}
		a, w := newTestArm(t, issuer)

		a.HandleLine(greetingZero)
		assert.Eventually(t, func() bool { return issuer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.Eventually(t, func() bool {
			a.mu.Lock()
			defer a.mu.Unlock()
			return !a.issuing
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, int64(0), a.RobotUID())
		assert.Equal(t, []string{"G90", "R1"}, w.Lines())
	})
}

func TestConfirmedLinkSendsMoves(t *testing.T) {
	a, w := newTestArm(t, nil)
	home := a.Current()
	a.HandleLine("HELLO WORLD! I AM AHROBOT #3")

	a.JogJoint(kinematics.JointB, 1)
	out := a.Update()
	assert.Equal(t, ResultProvisional, out.Result)
	assert.Equal(t, "R0 B62", out.Line)
	assert.Equal(t, home, a.Current(), "current waits for the controller")
	assert.Equal(t, 62.0, a.Display().Angles[kinematics.JointB])

	// the next move builds on the one in flight
	a.JogJoint(kinematics.JointB, 1)
	out = a.Update()
	assert.Equal(t, "R0 B64", out.Line)
	assert.Equal(t, []string{"G90", "R1", "R0 B62", "R0 B64"}, w.Lines())

	a.HandleLine("A180 B64 C180 D90 E60")
	cur := a.Current()
	assert.Equal(t, 64.0, cur.Angles[kinematics.JointB])
	assert.Equal(t, cur, a.Display())
	assert.Equal(t, cur, a.Candidate())
	assert.False(t, a.IsMoving())

	check := cur
	a.Model().Forward(&check)
	assert.Equal(t, check.FingerPosition, cur.FingerPosition)

	// the base is not in the status line, so its move stays in flight
	a.JogJoint(kinematics.JointF, 1)
	out = a.Update()
	assert.Equal(t, "R0 F182", out.Line)
	assert.True(t, a.IsMoving())

	a.HandleLine("A180 B64 C180 D90 E60")
	assert.Equal(t, 2.0, a.Current().Angles[kinematics.JointF])

	a.JogJoint(kinematics.JointF, 1)
	out = a.Update()
	assert.Equal(t, "R0 F184", out.Line)
}

func TestStatusLines(t *testing.T) {
	t.Run("ignored before greeting", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		before := a.Current()
		a.HandleLine("A10 B60 C0 D90 E30")
		assert.Equal(t, before, a.Current())
	})

	t.Run("overwrites reported joints only", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		a.JogJoint(kinematics.JointF, 5)
		a.Update()
		a.HandleLine(greetingZero)

		a.HandleLine("A178.5 B61 C178 D88 E59 F99")
		cur := a.Current()
		assert.Equal(t, [kinematics.NumJoints]float64{1.5, 61, -2, 88, 31, 10}, cur.Angles)
	})

	t.Run("controller angle convention", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		a.HandleLine(greetingZero)

		a.HandleLine("A170 B70 C160 D80 E50")
		cur := a.Current()
		for j, want := range [kinematics.NumJoints]float64{10, 70, -20, 80, 40, 0} {
			assert.InDelta(t, want, cur.Angles[j], 1e-9, "joint %s", kinematics.Joint(j))
		}
		assert.InDelta(t, 33.5693, cur.FingerPosition.X, 1e-3)
		assert.InDelta(t, -1.6070, cur.FingerPosition.Y, 1e-3)
		assert.InDelta(t, 28.3310, cur.FingerPosition.Z, 1e-3)
		assert.InDelta(t, -0.93573, cur.FingerForward.Z, 1e-4)
	})

	t.Run("diagnostic text is not a status line", func(t *testing.T) {
		model, err := kinematics.NewModel(kinematics.ModelMantis, nil, nil)
		require.NoError(t, err)
		logger, logs := logging.NewObservedTestLogger(t)
		a, err := NewArm(model, &recordingWriter{}, nil, logger)
		require.NoError(t, err)
		defer a.Close()
		a.HandleLine(greetingZero)
		before := a.Current()

		a.HandleLine("ALARM limit hit on axis")
		assert.Equal(t, before, a.Current())
		assert.Equal(t, 0, logs.FilterMessageSnippet("malformed").Len())
	})

	t.Run("malformed and short lines are dropped", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		a.HandleLine(greetingZero)
		before := a.Current()

		a.HandleLine("A1 B2 Cx D4 E5")
		a.HandleLine("A1 B2 C3")
		a.HandleLine("ok")
		a.HandleLine("HELLO WORLD! I AM AHROBOT #zz")
		assert.Equal(t, before, a.Current())
	})
}

func TestSubscribeLatestWins(t *testing.T) {
	a, _ := newTestArm(t, nil)
	events, cancel := a.Subscribe()

	for i := 0; i < 3; i++ {
		a.JogJoint(kinematics.JointB, 1)
		a.Update()
	}

	select {
	case ev := <-events:
		assert.Equal(t, SourceJog, ev.Source)
		assert.False(t, ev.Provisional)
		assert.Equal(t, 66.0, ev.Pose.Angles[kinematics.JointB])
	default:
		t.Fatal("expected a pose event")
	}

	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	a, _ := newTestArm(t, nil)
	events, _ := a.Subscribe()
	require.NoError(t, a.Close())
	_, open := <-events
	assert.False(t, open)
}

func TestMovePermitted(t *testing.T) {
	a, _ := newTestArm(t, nil)
	home := a.Current()
	assert.NoError(t, a.MovePermitted(home))

	far := home
	far.FingerPosition.X += 40
	assert.True(t, errors.Is(a.MovePermitted(far), kinematics.ErrUnreachable))

	// reachable, but only with the shoulder leaning back
	near := home
	near.FingerPosition.X -= 16
	assert.True(t, errors.Is(a.MovePermitted(near), kinematics.ErrJointLimit))

	assert.Equal(t, home, a.Current())
}

func TestBasePlacement(t *testing.T) {
	a, _ := newTestArm(t, nil)
	angles := a.Current().Angles

	a.RotateBase(90, 0)
	a.MoveBase(r3.Vector{X: 100})
	cur := a.Current()
	assert.Equal(t, angles, cur.Angles)
	assert.InDelta(t, 1, cur.BaseForward.Y, 1e-9)

	world := cur.ToWorld(cur.FingerPosition)
	assert.InDelta(t, 100, world.X, 1e-9)
	assert.InDelta(t, cur.FingerPosition.X, world.Y, 1e-9)
}

func TestModeCommands(t *testing.T) {
	a, w := newTestArm(t, nil)
	assert.True(t, errors.Is(a.SetRelativeMode(), ErrNotConnected))

	a.HandleLine(greetingZero)
	require.NoError(t, a.SetRelativeMode())
	require.NoError(t, a.SetAbsoluteMode())
	assert.Equal(t, []string{"G90", "R1", "G91", "G90"}, w.Lines())
}

func TestAbsoluteMoves(t *testing.T) {
	t.Run("joints", func(t *testing.T) {
		a, w := newTestArm(t, nil)
		a.HandleLine(greetingZero)

		out := a.MoveToJoints([kinematics.NumJoints]float64{10, 70, -20, 80, 40, 0})
		require.Equal(t, ResultProvisional, out.Result, "%v", out.Err)
		assert.Equal(t, "R0 A170 B70 C160 D80 E50", out.Line)
		assert.Equal(t, []string{"G90", "R1", out.Line}, w.Lines())
		assert.True(t, a.IsMoving())
		assert.InDelta(t, 33.5693, a.Display().FingerPosition.X, 1e-3)
	})

	t.Run("joints clamp", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		angles := a.Current().Angles
		angles[kinematics.JointE] = 120
		out := a.MoveToJoints(angles)
		assert.Equal(t, ResultCommitted, out.Result)
		assert.Equal(t, kinematics.Clamped, out.Verdict)
		assert.Equal(t, 90.0, a.Current().Angles[kinematics.JointE])
	})

	t.Run("finger", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		home := a.Current()
		target := home.FingerPosition.Add(r3.Vector{Z: -2})

		out := a.MoveFingerTo(target, home.FingerForward, home.FingerRight)
		require.Equal(t, ResultCommitted, out.Result, "%v", out.Err)
		assert.InDelta(t, 0, a.Current().FingerPosition.Sub(target).Norm(), 1e-6)
	})

	t.Run("finger pose the limits would clamp", func(t *testing.T) {
		a, _ := newTestArm(t, nil)
		home := a.Current()

		out := a.MoveFingerTo(home.FingerPosition.Sub(r3.Vector{X: 16}), home.FingerForward, home.FingerRight)
		assert.Equal(t, ResultRejected, out.Result)
		assert.True(t, errors.Is(out.Err, kinematics.ErrJointLimit), "got %v", out.Err)
		assert.Equal(t, home, a.Current())
	})
}

func TestStopDropsJog(t *testing.T) {
	a, _ := newTestArm(t, nil)
	a.JogJoint(kinematics.JointB, 1)
	a.Stop()
	assert.Equal(t, ResultIdle, a.Update().Result)
}
