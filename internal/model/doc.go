package model

// Package model defines domain data structures used across the app: the login
// session, QR login challenges and poll results, download items and their
// status enum, and the video metadata / stream descriptors returned by the
// video service. Status types carry their own transition rules.
