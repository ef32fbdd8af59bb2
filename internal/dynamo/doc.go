// Package dynamo holds the types shared by every loop-tuning package.
//
//   - [Point] and [Run]: one simulated or streamed loop trajectory
//   - [Sample] and [Series]: historian and live measurements
//   - the error kinds ([ErrInvalidParameter], [ErrInsufficientData],
//     [ErrFitDidNotConverge], [ErrNumericalInstability], [ErrNotInitialized])
//
// # Example
//
//	if errors.Is(err, dynamo.ErrFitDidNotConverge) {
//		// collect a longer step test
//	}
//
// # Thread Safety
//
// Nothing here holds mutable package state. [ParallelFor] is the only helper
// that starts goroutines; its callback must only touch its own index range.
package dynamo
