// Package pusher dispatches content pushes to the broker asynchronously.
//
// Producers call Queue.Push, which never blocks on the broker: entries wait
// in a bounded FIFO and a small worker pool (one worker by default, which
// keeps pushes in enqueue order) delivers them. When the queue is full the
// oldest waiting entry is dropped and logged.
//
// Failed pushes can be retried with exponential backoff up to MaxRetries
// times. With MaxRetries at zero a failure is logged and the entry is
// dropped.
//
// On shutdown the queue stops accepting entries and drains what it can
// until ShutdownTimeout expires.
package pusher
