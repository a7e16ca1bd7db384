// Package testing provides a reusable correctness suite and benchmark set
// for the atomic cell store. The suite is driven through a factory so that
// every store variant (default and NoEarlyExit) is held to the identical
// contract; the bail-early optimization must never change observable
// behavior.
package testing
