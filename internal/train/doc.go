// Package train runs the bounded training loop.
//
// A loop stops in exactly one terminal state: Converged when the recent mean
// loss reaches the convergence threshold, TimeExceeded when wall time reaches
// the cap, IterationLimitReached when the iteration count reaches the cap,
// Cancelled when the context ends, or Failed when a batch, step, or hook
// fails. Every bound is checked after every iteration.
package train
