package cryptox

import (
	"os"
	"strings"
)

// MachineSecret returns stable machine-specific material for key wrapping:
// /etc/machine-id, then the dbus machine id, then hostname+user. The
// fallback is weaker but keeps first-run working on systems without
// systemd.
func MachineSecret() []byte {
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return []byte(id)
			}
		}
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown-device"
	}
	if user := os.Getenv("USER"); user != "" {
		host += "-" + user
	}
	return []byte(host)
}
