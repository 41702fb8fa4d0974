// Package geometry turns a bounding box into a camera-relative 3D position
// and projects that position onto a geographic coordinate.
//
// The model is a pinhole approximation over a fixed, overridable set of
// camera intrinsics and a table of assumed real-world class heights. Every
// function is pure and safe for concurrent use. Failure is reported as a
// false "ok" result rather than an error: callers process many tracks per
// frame and must carry on when one estimate is invalid.
//
// Conventions: y is forward along the optical axis, x is lateral (positive to
// the right of the image), z is vertical (positive up). Angles are degrees
// at the API boundary and radians internally.
//
// Dependency rule: geometry depends on nothing else in this module except
// internal/config.
package geometry
