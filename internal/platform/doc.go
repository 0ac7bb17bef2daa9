// Package platform contains OS integration: the downloads directory,
// filename sanitizing, collision free copies and opening folders in the
// system file manager.
package platform
