// Package login drives the QR code login flow.
//
// A Controller requests a login challenge, polls its status on a fixed
// interval and pushes the resulting credential into the session store.
// Polling runs on a Scheduler; the controller owns at most one poll
// handle at a time and cancels it before any new attempt starts.
package login
