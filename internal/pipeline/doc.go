// Package pipeline runs the per-frame flow from raw detections to durable
// geographic paths.
//
// Frames are processed one at a time: detections are normalised, associated
// to tracks and localised by the tracker. When the persistence gate is open,
// the tracks updated in that frame are projected onto the current device
// location and merged into the path repository in the background. A failure
// for one track is logged and never stops the others.
package pipeline
