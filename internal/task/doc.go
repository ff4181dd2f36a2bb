// Package task runs the summary task queue.
//
// A Processor is invoked once per scheduler tick. Each run sweeps abandoned
// work, claims a small batch of pending tasks and executes them one at a time
// under a wall-clock budget. Every write a pipeline makes is conditional on
// the task still being processing, so a pipeline that outlives its budget
// cannot overwrite the state the processor already settled.
//
// QueueInspector answers "where am I in the queue" for polling clients
// without writing anything.
package task
