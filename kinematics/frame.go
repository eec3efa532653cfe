package kinematics

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/utils"
)

// MillimetersPerUnit converts Geometry lengths into frame system lengths.
const MillimetersPerUnit = 10.0

// FrameJoints lists the joints in the order of frame model inputs, base first.
var FrameJoints = [NumJoints]Joint{JointF, JointE, JointD, JointC, JointB, JointA}

type frameVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type frameOrientation struct {
	Type  string `json:"type"`
	Value struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Z     float64 `json:"z"`
		Theta float64 `json:"th"`
	} `json:"value"`
}

type frameLink struct {
	ID          string            `json:"id"`
	Parent      string            `json:"parent"`
	Translation frameVector       `json:"translation"`
	Orientation *frameOrientation `json:"orientation,omitempty"`
}

type frameJoint struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Parent string      `json:"parent"`
	Axis   frameVector `json:"axis"`
	Min    float64     `json:"min"`
	Max    float64     `json:"max"`
}

type frameModel struct {
	Name         string       `json:"name"`
	KinParamType string       `json:"kinematic_param_type"`
	Links        []frameLink  `json:"links"`
	Joints       []frameJoint `json:"joints"`
}

// frameModelJSON describes the arm as a chain of revolute joints with every
// angle at zero: upper arm, forearm and finger all point straight up and the
// arm faces +X. It matches forwardKinematics joint for joint.
func frameModelJSON(name string, g Geometry, l Limits) ([]byte, error) {
	limit := func(j Joint) (float64, float64) {
		if !l[j].Bounded {
			return -180, 180
		}
		return l[j].Min, l[j].Max
	}
	axisY := frameVector{Y: 1}
	axisZ := frameVector{Z: 1}

	m := frameModel{Name: name, KinParamType: "SVA"}
	parent := "world"
	addLink := func(id string, up float64) {
		m.Links = append(m.Links, frameLink{ID: id, Parent: parent, Translation: frameVector{Z: up * MillimetersPerUnit}})
		parent = id
	}
	addJoint := func(j Joint, id string, axis frameVector) {
		lo, hi := limit(j)
		m.Joints = append(m.Joints, frameJoint{ID: id, Type: "revolute", Parent: parent, Axis: axis, Min: lo, Max: hi})
		parent = id
	}

	addLink("base_link", 0)
	addJoint(JointF, "base", axisZ)
	addLink("shoulder_link", g.ShoulderHeight())
	addJoint(JointE, "shoulder", axisY)
	addLink("upper_arm_link", g.ShoulderToElbow())
	addJoint(JointD, "elbow", axisY)
	addLink("forearm_link", g.ElbowToWrist)
	addJoint(JointC, "forearm_roll", axisZ)
	addLink("wrist_link", 0)
	addJoint(JointB, "wrist", axisY)
	addLink("hand_link", 0)
	addJoint(JointA, "hand_roll", axisZ)
	addLink("finger", g.ToolOffset())

	// turn the finger frame so X is finger right, like FingerLocalPose
	finger := &m.Links[len(m.Links)-1]
	finger.Orientation = &frameOrientation{Type: "ov_degrees"}
	finger.Orientation.Value.Z = 1
	finger.Orientation.Value.Theta = 90

	return json.Marshal(m)
}

// FrameModel builds a frame system model of the arm. Its inputs are the
// joint angles in radians, ordered as FrameJoints, and its lengths are in
// millimeters.
func FrameModel(m Model) (referenceframe.Model, error) {
	data, err := frameModelJSON(m.Name(), m.Geometry(), m.Limits())
	if err != nil {
		return nil, err
	}
	cfg := &referenceframe.ModelConfigJSON{
		OriginalFile: &referenceframe.ModelFile{
			Bytes:     data,
			Extension: "json",
		},
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal frame model")
	}
	return cfg.ParseConfig(m.Name())
}

// FrameInputs converts joint angles in degrees into frame model inputs.
func FrameInputs(angles [NumJoints]float64) []referenceframe.Input {
	inputs := make([]referenceframe.Input, NumJoints)
	for i, j := range FrameJoints {
		inputs[i] = referenceframe.Input{Value: utils.DegToRad(angles[j])}
	}
	return inputs
}

// AnglesFromInputs converts frame model inputs back into joint angles in
// degrees.
func AnglesFromInputs(inputs []referenceframe.Input) ([NumJoints]float64, error) {
	var angles [NumJoints]float64
	if len(inputs) != NumJoints {
		return angles, fmt.Errorf("expected %d joint positions, got %d", NumJoints, len(inputs))
	}
	for i, j := range FrameJoints {
		angles[j] = utils.RadToDeg(inputs[i].Value)
	}
	return angles, nil
}
