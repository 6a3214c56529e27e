// Package control defines how a closed loop asks for its next input.
//
// A [Policy] is consulted once per simulation step and reports a
// [Decision]. Policies that re-plan only every few steps (the MPC
// controller, or a feedback [Law] wrapped in [Sampled]) keep the previous
// action in force between re-plans:
//
//	pid := control.NewPID(0.8, 0.05, 0.1, 0)
//	policy, err := control.NewSampled(control.Limit(pid, -1, 1), 10)
//	...
//	d, err := policy.Act(ctx, t, x)
//
// Laws available as baselines:
//
//   - [None]: zero input
//   - [Manual]: a constant input set from outside
//   - [PID]: proportional-integral-derivative on the sample clock
//   - [LQR]: scalar discrete-time LQR from the Riccati recursion
package control
