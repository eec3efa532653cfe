package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mantis_arm/kinematics"
)

func TestFormatDiff(t *testing.T) {
	tests := []struct {
		name     string
		prev     [kinematics.NumJoints]float64
		next     [kinematics.NumJoints]float64
		expected string
		changed  bool
	}{
		{
			name:     "single joint",
			prev:     [kinematics.NumJoints]float64{0, 0, 0, 0, 0, 0},
			next:     [kinematics.NumJoints]float64{0, 5, 0, 0, 0, 0},
			expected: "R0 B5",
			changed:  true,
		},
		{
			name:     "no change",
			prev:     [kinematics.NumJoints]float64{1, 2, 3, 4, 5, 6},
			next:     [kinematics.NumJoints]float64{1, 2, 3, 4, 5, 6},
			expected: "",
			changed:  false,
		},
		{
			name:     "change below wire precision",
			prev:     [kinematics.NumJoints]float64{10, 0, 0, 0, 0, 0},
			next:     [kinematics.NumJoints]float64{10.0002, 0, 0, 0, 0, 0},
			expected: "",
			changed:  false,
		},
		{
			name:     "several joints in order",
			prev:     [kinematics.NumJoints]float64{0, 60, 0, 90, 30, 0},
			next:     [kinematics.NumJoints]float64{-1.25, 60, 0, 82.8491, 34.4746, 12.0004},
			expected: "R0 A-1.25 D82.849 E34.475 F12",
			changed:  true,
		},
		{
			name:     "rounds to zero without a sign",
			prev:     [kinematics.NumJoints]float64{3, 0, 0, 0, 0, 0},
			next:     [kinematics.NumJoints]float64{-0.0001, 0, 0, 0, 0, 0},
			expected: "R0 A0",
			changed:  true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			line, changed := FormatDiff(tc.prev, tc.next)
			assert.Equal(t, tc.changed, changed)
			assert.Equal(t, tc.expected, line)
		})
	}
}

func TestRoundOff(t *testing.T) {
	assert.Equal(t, 1.235, RoundOff(1.2346))
	assert.Equal(t, -2.5, RoundOff(-2.5))
	assert.Equal(t, "0", FormatValue(-0.0004))
	assert.Equal(t, "150.125", FormatValue(150.125))
	assert.Equal(t, "UID 42", FormatUID(42))
}

func TestParseGreeting(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		id   int64
	}{
		{line: "HELLO WORLD! I AM AHROBOT #0", kind: Greeting, id: 0},
		{line: "HELLO WORLD! I AM AHROBOT #1234\r\n", kind: Greeting, id: 1234},
		{line: "> HELLO WORLD! I AM AHROBOT #7 v2", kind: Greeting, id: 7},
		{line: "HELLO WORLD! I AM AHROBOT #", kind: Malformed},
		{line: "HELLO WORLD! I AM AHROBOT #abc", kind: Malformed},
		{line: "HELLO WORLD! I AM AHROBOT #-3", kind: Malformed},
		{line: "HELLO WORLD!", kind: Unstructured},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			msg := ParseLine(tc.line)
			assert.Equal(t, tc.kind, msg.Kind)
			assert.Equal(t, tc.id, msg.ID)
			if tc.kind == Malformed {
				assert.Error(t, msg.Err)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Run("full report", func(t *testing.T) {
		msg := ParseLine("A1.5 B60 C-2 D90.25 E30")
		require.Equal(t, Status, msg.Kind)
		assert.Equal(t, map[kinematics.Joint]float64{
			kinematics.JointA: 1.5,
			kinematics.JointB: 60,
			kinematics.JointC: -2,
			kinematics.JointD: 90.25,
			kinematics.JointE: 30,
		}, msg.Angles)
	})

	t.Run("unknown tokens are skipped", func(t *testing.T) {
		msg := ParseLine("A0 B1 C2 D3 E4 X9 ok")
		require.Equal(t, Status, msg.Kind)
		assert.Len(t, msg.Angles, 5)
	})

	t.Run("too few tokens", func(t *testing.T) {
		msg := ParseLine("A0 B1 C2 D3")
		assert.Equal(t, Unstructured, msg.Kind)
		assert.Nil(t, msg.Angles)
	})

	t.Run("bad number rejects the line", func(t *testing.T) {
		msg := ParseLine("A0 B1 Cfoo D3 E4")
		assert.Equal(t, Malformed, msg.Kind)
		assert.Nil(t, msg.Angles)
		assert.Error(t, msg.Err)
	})

	t.Run("non-finite number rejects the line", func(t *testing.T) {
		msg := ParseLine("A0 BNaN C2 D3 E4")
		assert.Equal(t, Malformed, msg.Kind)
	})

	t.Run("other lines", func(t *testing.T) {
		for _, line := range []string{"", "ok", "R0 B5", "G90", "ALARM limit hit on axis", "A: homing axis B now"} {
			assert.Equal(t, Unstructured, ParseLine(line).Kind, line)
		}
	})
}
