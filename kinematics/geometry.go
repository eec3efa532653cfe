package kinematics

import (
	"fmt"
)

// Geometry holds the fixed link dimensions of one physical arm. All lengths
// share one unit (centimeters for the Mantis).
type Geometry struct {
	AnchorAdjustZ     float64 `json:"anchor_adjust_z" toml:"anchor_adjust_z"`
	AnchorToShoulderZ float64 `json:"anchor_to_shoulder_z" toml:"anchor_to_shoulder_z"`
	ShoulderToBoom    float64 `json:"shoulder_to_boom" toml:"shoulder_to_boom"`
	BoomToElbow       float64 `json:"boom_to_elbow" toml:"boom_to_elbow"`
	ElbowToWrist      float64 `json:"elbow_to_wrist" toml:"elbow_to_wrist"`
	WristToTool       float64 `json:"wrist_to_tool" toml:"wrist_to_tool"`

	// Extra length added by an attached tool, measured past the tool flange.
	ToolLength float64 `json:"tool_length,omitempty" toml:"tool_length"`

	// Tolerance used by the IK singularity checks.
	Epsilon float64 `json:"epsilon,omitempty" toml:"epsilon"`
}

// DefaultMantisGeometry returns the dimensions of the Mantis arm as measured
// from its design files.
func DefaultMantisGeometry() Geometry {
	return Geometry{
		AnchorAdjustZ:     2.7,
		AnchorToShoulderZ: 24.5,
		ShoulderToBoom:    13.9744,
		BoomToElbow:       8.547,
		ElbowToWrist:      14.6855 + 5.7162 + 2.4838,
		WristToTool:       5,
		Epsilon:           1e-5,
	}
}

// ShoulderHeight is the height of the shoulder pivot above the anchor.
func (g Geometry) ShoulderHeight() float64 {
	return g.AnchorAdjustZ + g.AnchorToShoulderZ
}

// ShoulderToElbow is the full upper arm length.
func (g Geometry) ShoulderToElbow() float64 {
	return g.ShoulderToBoom + g.BoomToElbow
}

// ToolOffset is the distance from the wrist pivot to the finger tip.
func (g Geometry) ToolOffset() float64 {
	return g.WristToTool + g.ToolLength
}

// Reach is the farthest the wrist can be from the shoulder.
func (g Geometry) Reach() float64 {
	return g.ShoulderToElbow() + g.ElbowToWrist
}

// Validate ensures the geometry describes a buildable arm and fills in a
// default epsilon.
func (g *Geometry) Validate() error {
	if g.Epsilon == 0 {
		g.Epsilon = 1e-5
	}
	if g.Epsilon < 0 {
		return fmt.Errorf("epsilon must be positive, got %v", g.Epsilon)
	}
	if g.ShoulderToElbow() <= 0 {
		return fmt.Errorf("shoulder to elbow length must be positive, got %v", g.ShoulderToElbow())
	}
	if g.ElbowToWrist <= 0 {
		return fmt.Errorf("elbow_to_wrist must be positive, got %v", g.ElbowToWrist)
	}
	if g.ToolOffset() <= 0 {
		return fmt.Errorf("wrist to finger distance must be positive, got %v", g.ToolOffset())
	}
	if g.ShoulderToBoom < 0 || g.BoomToElbow < 0 || g.ToolLength < 0 {
		return fmt.Errorf("link lengths must not be negative")
	}
	return nil
}
