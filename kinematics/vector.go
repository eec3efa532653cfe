package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/utils"
)

var (
	axisX = r3.Vector{X: 1}
	axisZ = r3.Vector{Z: 1}
)

// rotateAroundAxis rotates v by degrees around the unit vector axis using
// Rodrigues' formula.
func rotateAroundAxis(v, axis r3.Vector, degrees float64) r3.Vector {
	theta := utils.DegToRad(degrees)
	c, s := math.Cos(theta), math.Sin(theta)
	return v.Mul(c).
		Add(axis.Cross(v).Mul(s)).
		Add(axis.Mul(axis.Dot(v) * (1 - c)))
}

// signedAngle returns the angle in degrees that turns from onto to around
// axis. Both vectors must be perpendicular to axis.
func signedAngle(from, to, axis r3.Vector) float64 {
	y := axis.Dot(from.Cross(to))
	x := from.Dot(to)
	return WrapDegrees(utils.RadToDeg(math.Atan2(y, x)))
}

// WrapDegrees normalizes an angle into (-180, 180].
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}

