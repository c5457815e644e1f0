// Package events provides a small typed publish/subscribe bus.
//
// # Overview
//
// Components that emit notifications (asset loads, location samples,
// chapter advances) own one Bus per event type. Listeners register a
// callback and receive a Subscription handle that removes them again:
//
//	sub := bus.Subscribe(func(s location.Sample) { ... })
//	defer sub.Unsubscribe()
//
// # Delivery
//
// Publish runs listeners synchronously, in subscription order, on the
// publishing goroutine. A publisher that emits from a single goroutine
// therefore delivers events to every listener in arrival order.
//
// A listener that panics is recovered and logged; the remaining listeners
// still receive the event.
package events
