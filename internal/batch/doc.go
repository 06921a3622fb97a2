// Package batch coalesces outbound actions destined for a remote process
// into time-windowed batches, cutting cross-process call volume without
// making latency-sensitive work wait.
//
// Low-priority actions ride the coalescing window; an action at or above
// the priority flush threshold flushes the entire buffer immediately so
// urgent work never queues behind the timer and whatever else is pending
// amortizes the call. Acknowledgements settle each action independently:
// one failing action never fails its batch-mates.
package batch
