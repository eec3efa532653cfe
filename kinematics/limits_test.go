package kinematics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforce(t *testing.T) {
	limits := DefaultMantisLimits()

	tests := []struct {
		name     string
		angles   [NumJoints]float64
		verdict  Verdict
		expected [NumJoints]float64
	}{
		{
			name:     "home is accepted",
			angles:   HomeAngles,
			verdict:  Accepted,
			expected: HomeAngles,
		},
		{
			name:     "soft joint above max is clamped",
			angles:   [NumJoints]float64{JointB: 179, JointD: 90, JointE: 30},
			verdict:  Clamped,
			expected: [NumJoints]float64{JointB: 175, JointD: 90, JointE: 30},
		},
		{
			name:     "soft joint below min is clamped",
			angles:   [NumJoints]float64{JointB: 60, JointD: 90, JointE: -12},
			verdict:  Clamped,
			expected: [NumJoints]float64{JointB: 60, JointD: 90, JointE: 0},
		},
		{
			name:     "free joint is wrapped",
			angles:   [NumJoints]float64{JointA: 190, JointB: 60, JointC: -200, JointD: 90, JointE: 30},
			verdict:  Clamped,
			expected: [NumJoints]float64{JointA: -170, JointB: 60, JointC: 160, JointD: 90, JointE: 30},
		},
		{
			name:     "value on the bound is accepted",
			angles:   [NumJoints]float64{JointB: 5, JointD: 150, JointE: 90, JointF: -170},
			verdict:  Accepted,
			expected: [NumJoints]float64{JointB: 5, JointD: 150, JointE: 90, JointF: -170},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := NewKeyframe()
			k.Angles = tc.angles

			out, verdict, err := limits.Enforce(k)
			require.NoError(t, err)
			assert.Equal(t, tc.verdict, verdict)
			for _, j := range Joints {
				assert.InDelta(t, tc.expected[j], out.Angles[j], 1e-9, "joint %s", j)
			}
			assert.Equal(t, tc.angles, k.Angles, "input must not change")
		})
	}

	t.Run("hard joint is rejected", func(t *testing.T) {
		k := NewKeyframe()
		k.Angles = HomeAngles
		k.Angles[JointF] = 175

		_, verdict, err := limits.Enforce(k)
		assert.Equal(t, Rejected, verdict)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrJointLimit))
		assert.Contains(t, err.Error(), "joint F")
	})
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultMantisLimits().Validate())

	l := DefaultMantisLimits()
	l[JointD] = HardLimit(10, -10)
	assert.Error(t, l.Validate())

	// min and max are ignored on free joints
	l = DefaultMantisLimits()
	l[JointA] = JointLimit{}
	l[JointA].Min = 5
	assert.NoError(t, l.Validate())
}

func TestJointLimitString(t *testing.T) {
	assert.Equal(t, "unbounded", Unbounded().String())
	assert.Equal(t, "soft [5, 175]", SoftLimit(5, 175).String())
	assert.Equal(t, "hard [-170, 170]", HardLimit(-170, 170).String())
	assert.Equal(t, "clamped", Clamped.String())
}
