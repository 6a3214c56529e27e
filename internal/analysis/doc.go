// Package analysis characterizes a finished closed-loop trajectory.
//
//   - [Analyze]: settling step, overshoot and input usage
//   - [DecayRate]: mean per-step contraction of the state
//   - [PowerSpectrum], [DominantPeriod]: chattering in the applied input
//   - [NewPortrait], [Portrait.ASCII]: return map of x[t] against x[t+1]
//
// A negative decay rate means the loop contracts toward the origin:
//
//	if analysis.DecayRate(traj.States) < 0 {
//	    // converging
//	}
package analysis
