// Package worker runs block compilations on a bounded in-process pool.
//
// Dispatch returns a Future immediately. Each task gets its own deadline; a
// task that overruns resolves with services.ErrWorkerTimeout, and a compile
// error or panic resolves with services.ErrWorkerError. Failures never cancel
// sibling tasks: JoinAll waits for every future up to one overall deadline and
// hands back one Result per future in dispatch order, along with the first
// failure to resolve.
package worker
