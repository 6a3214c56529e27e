// Package viz renders a running control loop in the terminal.
//
// [Model] is a Bubble Tea program that advances a [sim.Session] on a timer
// and draws the state and held input with asciigraph.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single step while paused
//	R     - Restart the run
//	+/-   - Steps per frame
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz
