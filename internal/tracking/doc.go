// Package tracking owns the track association engine: it matches each
// frame's detections to live tracks by Intersection-over-Union, creates
// tracks for unmatched detections, ages and evicts stale tracks, and keeps
// each track's camera-relative 3D estimate current.
//
// Association is single-pass greedy by default: detections are visited in
// input order and each takes the unmatched same-class track with the highest
// IoU above the threshold. An optional Kuhn–Munkres mode solves the same
// problem optimally.
//
// Dependency rule: tracking may depend on detection and geometry, never on
// storage or the pipeline.
package tracking
