// Package subscription binds broker containers to notification handlers.
//
// The Registry holds at most one binding per container path. Subscribing a
// path that is already bound is a no-op, so repeated discovery of the same
// container never produces duplicate deliveries. A binding is stored only
// after the broker accepted the subscription.
//
// Run consumes the broker's bounded notification channel and dispatches
// each notification to its handler on the Run goroutine.
package subscription
