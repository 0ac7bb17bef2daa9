package session

import (
	"os"
	"os/user"
)

// MachineSecret returns a secret bound to the current host and OS account.
// It keeps the session file from being usable when copied to another machine.
func MachineSecret(appID string) []byte {
	host, _ := os.Hostname()
	uid := ""
	if u, err := user.Current(); err == nil {
		uid = u.Uid + ":" + u.HomeDir
	}
	return []byte(appID + "|" + host + "|" + uid)
}
