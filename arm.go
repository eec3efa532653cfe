// Package mantis_arm drives a Mantis arm: it turns jog requests into joint and
// finger poses, keeps them inside the joint limits and keeps them in step with
// the controller on the other end of a serial line.
package mantis_arm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	rdkutils "go.viam.com/rdk/utils"
	goutils "go.viam.com/utils"

	"mantis_arm/kinematics"
	"mantis_arm/protocol"
)

// statusTolerance is how far, in degrees, a reported angle may sit from the
// current one and still count as unchanged. Wire values carry 3 decimals.
const statusTolerance = 1e-3

// ErrNotConnected is returned by commands that need a confirmed link.
var ErrNotConnected = errors.New("arm link is not confirmed")

// LineWriter sends one command line to the controller. Implementations add
// the line terminator.
type LineWriter interface {
	WriteLine(line string) error
}

// Result is what a cycle did with its candidate pose.
type Result int

const (
	// ResultIdle means there was nothing to do.
	ResultIdle Result = iota
	// ResultCommitted means the candidate replaced the current pose.
	ResultCommitted
	// ResultProvisional means the move was sent to the controller and the
	// candidate is shown until the controller reports where it ended up.
	ResultProvisional
	// ResultRejected means the candidate was thrown away.
	ResultRejected
)

func (r Result) String() string {
	switch r {
	case ResultIdle:
		return "idle"
	case ResultCommitted:
		return "committed"
	case ResultProvisional:
		return "provisional"
	case ResultRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Outcome reports one call to Update.
type Outcome struct {
	Mode    Mode
	Result  Result
	Verdict kinematics.Verdict
	// Err says why a move was rejected.
	Err error
	// Line is the move command sent to the controller, if any.
	Line string
}

// EventSource says what produced a pose event.
type EventSource int

const (
	SourceJog EventSource = iota
	SourceStatus
	SourceBase
)

func (s EventSource) String() string {
	switch s {
	case SourceJog:
		return "jog"
	case SourceStatus:
		return "status"
	case SourceBase:
		return "base"
	default:
		return fmt.Sprintf("EventSource(%d)", int(s))
	}
}

// PoseEvent is published whenever the displayed pose changes.
type PoseEvent struct {
	Source      EventSource
	Pose        kinematics.Keyframe
	Provisional bool
}

// Arm owns the current and candidate poses of one arm. All methods are safe
// for concurrent use; jogs, cycles and inbound lines are serialized.
type Arm struct {
	logger logging.Logger
	model  kinematics.Model
	writer LineWriter
	issuer UIDIssuer

	mu        sync.Mutex
	current   kinematics.Keyframe
	candidate kinematics.Keyframe
	// pending is the last move sent to a connected controller that it has
	// not reported back yet.
	pending *kinematics.Keyframe
	intent  JogIntent
	speed   float64

	confirmed bool
	robotUID  int64
	issuing   bool

	subsMu sync.Mutex
	subs   map[chan PoseEvent]struct{}
	closed bool

	workers *goutils.StoppableWorkers
}

// NewArm creates an arm resting at the model's home pose. writer may be nil
// when no controller is attached, and issuer may be nil to never request
// robot IDs.
func NewArm(model kinematics.Model, writer LineWriter, issuer UIDIssuer, logger logging.Logger) (*Arm, error) {
	home := model.Home()
	check := home
	if err := model.Inverse(&check); err != nil {
		return nil, errors.Wrapf(err, "model %s home pose", model.Name())
	}

	a := &Arm{
		logger:    logger,
		model:     model,
		writer:    writer,
		issuer:    issuer,
		current:   home,
		candidate: home,
		speed:     DefaultSpeed,
		subs:      map[chan PoseEvent]struct{}{},
		workers:   goutils.NewBackgroundStoppableWorkers(),
	}
	logger.Infof("%s ready at home pose %v", model.DisplayName(), home.Angles)
	return a, nil
}

// NewArmFromConfig builds the configured model and ID issuer and creates an
// arm writing to writer.
func NewArmFromConfig(cfg *MantisConfig, writer LineWriter, logger logging.Logger) (*Arm, error) {
	model, err := cfg.ArmModel()
	if err != nil {
		return nil, fmt.Errorf("failed to create kinematic model: %w", err)
	}
	var issuer UIDIssuer
	if cfg.UIDServiceURL != "" {
		issuer = NewHTTPUIDIssuer(cfg.UIDServiceURL, cfg.UIDTimeout, cfg.UIDRetries)
	}
	a, err := NewArm(model, writer, issuer, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Speed > 0 {
		if err := a.SetSpeed(cfg.Speed); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Model returns the arm's kinematic model.
func (a *Arm) Model() kinematics.Model {
	return a.model
}

// JogJoint requests that joint j turn by delta speed-scaled degrees on the
// next cycle. It cancels any pending Cartesian jog.
func (a *Arm) JogJoint(j kinematics.Joint, delta float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intent.SetAngular(j, delta)
}

// JogCartesian requests that the finger move or turn along axis by delta on
// the next cycle. It cancels any pending joint jog.
func (a *Arm) JogCartesian(axis CartesianAxis, delta float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intent.SetCartesian(axis, delta)
}

// Intent returns the jog requested for the next cycle.
func (a *Arm) Intent() JogIntent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.intent
}

// SetSpeed sets the scale applied to every jog delta.
func (a *Arm) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("speed must be positive, got %v", speed)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speed = speed
	return nil
}

// Speed returns the jog scale.
func (a *Arm) Speed() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speed
}

// Update runs one cycle: it applies the requested jog, solves for the new
// pose, checks the limits and commits or discards the result. The jog
// request is always cleared.
func (a *Arm) Update() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.intent.Reset()

	mode := a.intent.Mode()
	switch mode {
	case ModeIdle:
		return Outcome{Mode: mode, Result: ResultIdle}
	case ModeIK:
		return a.moveLocked(mode, a.solveCartesian)
	default:
		return a.moveLocked(mode, a.solveJoints)
	}
}

// MoveToJoints moves every joint to angles, in degrees, in one step. Soft
// limits clamp the move the way they clamp a joint jog.
func (a *Arm) MoveToJoints(angles [kinematics.NumJoints]float64) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.moveLocked(ModeFK, func() (kinematics.Verdict, error) {
		c := a.candidate
		c.Angles = angles
		return a.enforceJointsLocked(c)
	})
}

// MoveFingerTo moves the finger to position with the given forward and right
// directions, all relative to the base anchor. A pose the limits would clamp
// is rejected, since the finger would end up somewhere else.
func (a *Arm) MoveFingerTo(position, forward, right r3.Vector) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.moveLocked(ModeIK, func() (kinematics.Verdict, error) {
		c := a.candidate
		c.FingerPosition = position
		c.FingerForward = forward.Normalize()
		c.FingerRight = right.Normalize()
		c.ClearOrientation()
		if err := a.model.Inverse(&c); err != nil {
			return kinematics.Rejected, err
		}
		limited, verdict, err := a.model.Limits().Enforce(c)
		if err != nil {
			return verdict, err
		}
		if verdict == kinematics.Clamped {
			return kinematics.Rejected, errors.Wrapf(kinematics.ErrJointLimit,
				"pose needs angles %v, limits allow %v", c.Angles, limited.Angles)
		}
		a.candidate = limited
		return verdict, nil
	})
}

// Stop drops any jog requested since the last cycle. A move already sent to
// the controller still runs to its end.
func (a *Arm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intent.Reset()
}

// IsMoving reports whether a move sent to the controller has not been
// reported back yet.
func (a *Arm) IsMoving() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// moveLocked solves one move with solve, which turns a.candidate into the
// target pose, and commits or discards the result.
func (a *Arm) moveLocked(mode Mode, solve func() (kinematics.Verdict, error)) Outcome {
	out := Outcome{Mode: mode}

	// keep building on a move the controller has not reported back yet
	base := a.current
	if a.pending != nil {
		base = *a.pending
	}
	a.candidate = base

	var err error
	out.Verdict, err = solve()
	if err != nil {
		a.logger.Debugf("%s move rejected: %v", mode, err)
		a.candidate = a.current
		out.Result = ResultRejected
		out.Verdict = kinematics.Rejected
		out.Err = err
		return out
	}
	if out.Verdict == kinematics.Clamped {
		a.logger.Debugf("%s move clamped to %v", mode, a.candidate.Angles)
	}

	out.Result, out.Line = a.commit(base)
	return out
}

func (a *Arm) solveCartesian() (kinematics.Verdict, error) {
	d := a.intent.Cartesian
	s := a.speed
	c := a.candidate

	c.FingerPosition = c.FingerPosition.Add(r3.Vector{X: d[AxisX] * s, Y: d[AxisY] * s, Z: d[AxisZ] * s})
	if d[AxisU] != 0 || d[AxisV] != 0 || d[AxisW] != 0 {
		c.RotateFinger(d[AxisU]*s, d[AxisV]*s, d[AxisW]*s)
	}
	if err := a.model.Inverse(&c); err != nil {
		return kinematics.Rejected, err
	}

	limited, verdict, err := a.model.Limits().Enforce(c)
	if err != nil {
		return verdict, err
	}
	if verdict == kinematics.Clamped {
		// the finger pose must follow the clamped angles
		a.model.Forward(&limited)
	}
	a.candidate = limited
	return verdict, nil
}

func (a *Arm) solveJoints() (kinematics.Verdict, error) {
	c := a.candidate
	for _, j := range kinematics.Joints {
		c.Angles[j] += a.intent.Angular[j] * a.speed
	}
	return a.enforceJointsLocked(c)
}

// enforceJointsLocked limits the joint angles of c, derives its finger pose
// and makes it the candidate.
func (a *Arm) enforceJointsLocked(c kinematics.Keyframe) (kinematics.Verdict, error) {
	limited, verdict, err := a.model.Limits().Enforce(c)
	if err != nil {
		return verdict, err
	}
	a.model.Forward(&limited)
	limited.ClearOrientation()
	a.candidate = limited
	return verdict, nil
}

// commit makes the candidate current, or with a confirmed link sends the
// move and holds the candidate until the controller reports back. prev is
// the pose the controller was last told to reach.
func (a *Arm) commit(prev kinematics.Keyframe) (Result, string) {
	if !a.confirmed {
		a.current = a.candidate
		a.pending = nil
		a.publishLocked(PoseEvent{Source: SourceJog, Pose: a.current})
		return ResultCommitted, ""
	}

	cal := a.model.Calibration()
	line, changed := protocol.FormatDiff(cal.ToWire(prev.Angles), cal.ToWire(a.candidate.Angles))
	if changed {
		a.writeLocked(line)
	}
	provisional := a.candidate
	a.pending = &provisional
	a.publishLocked(PoseEvent{Source: SourceJog, Pose: provisional, Provisional: true})
	return ResultProvisional, line
}

// HandleLine processes one line received from the controller. Nothing it
// receives is fatal; unusable lines are logged and dropped.
func (a *Arm) HandleLine(line string) {
	msg := protocol.ParseLine(line)

	a.mu.Lock()
	defer a.mu.Unlock()

	switch msg.Kind {
	case protocol.Greeting:
		a.handleGreeting(msg)
	case protocol.Status:
		if !a.confirmed {
			a.logger.Debugf("ignoring status before greeting: %q", msg.Line)
			return
		}
		a.applyStatus(msg)
	case protocol.Malformed:
		a.logger.Warnf("dropping malformed line %q: %v", msg.Line, msg.Err)
	default:
		a.logger.Debugf("controller: %s", msg.Line)
	}
}

func (a *Arm) handleGreeting(msg protocol.Message) {
	if msg.ID != 0 && msg.ID != a.robotUID {
		a.robotUID = msg.ID
		a.logger.Infof("controller identifies as %s", a.displayNameLocked())
	}

	if !a.confirmed {
		a.confirmed = true
		a.logger.Infof("link confirmed with %s", a.displayNameLocked())
		a.writeLocked(protocol.AbsoluteMode)
		a.writeLocked(protocol.ReadyCommand)
	}

	if a.robotUID == 0 && !a.issuing && a.issuer != nil {
		a.issuing = true
		a.workers.Add(a.issueUID)
	}
}

// issueUID runs on a worker so the network call never holds the lock.
func (a *Arm) issueUID(ctx context.Context) {
	uid, err := a.issuer.IssueUID(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.issuing = false
	if err != nil {
		a.logger.Warnf("robot keeps id 0: %v", err)
		return
	}
	if a.robotUID != 0 {
		a.logger.Debugf("discarding issued id %d, controller already reported %d", uid, a.robotUID)
		return
	}
	a.robotUID = uid
	a.writeLocked(protocol.FormatUID(uid))
	a.logger.Infof("issued new id to %s", a.displayNameLocked())
}

func (a *Arm) applyStatus(msg protocol.Message) {
	cal := a.model.Calibration()
	// joints the controller does not report keep the move in flight
	reported := a.displayLocked()
	changed := 0
	for _, j := range a.model.StatusJoints() {
		wire, ok := msg.Angles[j]
		if !ok {
			continue
		}
		v := cal.FromWire(j, wire)
		if !rdkutils.Float64AlmostEqual(v, a.current.Angles[j], statusTolerance) {
			reported.Angles[j] = v
			changed++
		}
	}
	if changed > 0 {
		a.logger.Debugf("controller moved %d joints: %v", changed, reported.Angles)
	}
	a.model.Forward(&reported)

	a.current = reported
	a.candidate = reported
	a.pending = nil
	a.publishLocked(PoseEvent{Source: SourceStatus, Pose: reported})
}

// MovePermitted reports whether the finger pose of k can be reached within
// the joint limits. It only works on a copy of k.
func (a *Arm) MovePermitted(k kinematics.Keyframe) error {
	if err := a.model.Inverse(&k); err != nil {
		return err
	}
	limited, verdict, err := a.model.Limits().Enforce(k)
	if err != nil {
		return err
	}
	if verdict == kinematics.Clamped {
		return errors.Wrapf(kinematics.ErrJointLimit, "pose needs angles %v, limits allow %v", k.Angles, limited.Angles)
	}
	return nil
}

// MoveBase places the arm's anchor in the world.
func (a *Arm) MoveBase(anchor r3.Vector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateBaseLocked(func(k *kinematics.Keyframe) { k.Anchor = anchor })
}

// RotateBase points the arm's base with pan and tilt in degrees.
func (a *Arm) RotateBase(pan, tilt float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateBaseLocked(func(k *kinematics.Keyframe) { k.SetBase(pan, tilt) })
}

func (a *Arm) updateBaseLocked(apply func(k *kinematics.Keyframe)) {
	apply(&a.current)
	apply(&a.candidate)
	if a.pending != nil {
		apply(a.pending)
	}
	a.publishLocked(PoseEvent{Source: SourceBase, Pose: a.displayLocked(), Provisional: a.pending != nil})
}

// SetAbsoluteMode tells the controller that move values are absolute.
func (a *Arm) SetAbsoluteMode() error {
	return a.sendCommand(protocol.AbsoluteMode)
}

// SetRelativeMode tells the controller that move values are offsets.
func (a *Arm) SetRelativeMode() error {
	return a.sendCommand(protocol.RelativeMode)
}

func (a *Arm) sendCommand(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.confirmed || a.writer == nil {
		return ErrNotConnected
	}
	return a.writer.WriteLine(line)
}

// writeLocked sends a line in order with the state change that caused it.
// Write errors are logged; the controller reports its real pose later.
func (a *Arm) writeLocked(line string) {
	if a.writer == nil {
		return
	}
	if err := a.writer.WriteLine(line); err != nil {
		a.logger.Warnf("failed to send %q: %v", line, err)
	}
}

// Current returns the committed pose.
func (a *Arm) Current() kinematics.Keyframe {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Candidate returns the pose being worked on by the last cycle.
func (a *Arm) Candidate() kinematics.Keyframe {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.candidate
}

// Display returns the pose to show: the move in flight if there is one,
// otherwise the committed pose.
func (a *Arm) Display() kinematics.Keyframe {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayLocked()
}

func (a *Arm) displayLocked() kinematics.Keyframe {
	if a.pending != nil {
		return *a.pending
	}
	return a.current
}

// Connected reports whether the controller has greeted us.
func (a *Arm) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.confirmed
}

// RobotUID returns the controller's robot ID, zero when it has none.
func (a *Arm) RobotUID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.robotUID
}

// DisplayName names the arm and its robot ID.
func (a *Arm) DisplayName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayNameLocked()
}

func (a *Arm) displayNameLocked() string {
	return fmt.Sprintf("%s #%d", a.model.DisplayName(), a.robotUID)
}

// Subscribe returns a channel of pose events and a function that ends the
// subscription. A slow reader only misses intermediate poses; it always gets
// the latest one.
func (a *Arm) Subscribe() (<-chan PoseEvent, func()) {
	ch := make(chan PoseEvent, 1)
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	if a.closed {
		close(ch)
		return ch, func() {}
	}
	a.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subsMu.Lock()
			defer a.subsMu.Unlock()
			if _, ok := a.subs[ch]; ok {
				delete(a.subs, ch)
				close(ch)
			}
		})
	}
}

func (a *Arm) publishLocked(ev PoseEvent) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for ch := range a.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// drop the stale event the reader has not taken yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Run calls Update every period until ctx is done.
func (a *Arm) Run(ctx context.Context, period time.Duration) {
	for goutils.SelectContextOrWait(ctx, period) {
		a.Update()
	}
}

// Close stops background work and ends every subscription.
func (a *Arm) Close() error {
	a.workers.Stop()

	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	for ch := range a.subs {
		close(ch)
	}
	a.subs = nil
	return nil
}
