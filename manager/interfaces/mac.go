package interfaces

import (
	"net"
	"regexp"
	"strings"
)

var (
	bareMAC      = regexp.MustCompile(`^[0-9a-f]{12}$`)
	canonicalMAC = regexp.MustCompile(`^[0-9a-f]{2}(:[0-9a-f]{2}){5}$`)
)

// NormalizeMAC rewrites a MAC in Cisco dotted, bare hex, dash or colon
// separated form to lowercase colon separated hex. The boolean is false
// when the value is not a 48-bit MAC in any of those forms.
func NormalizeMAC(mac string) (string, bool) {
	mac = strings.ToLower(strings.TrimSpace(mac))
	if bareMAC.MatchString(mac) {
		parts := make([]string, 0, 6)
		for i := 0; i < 12; i += 2 {
			parts = append(parts, mac[i:i+2])
		}
		mac = strings.Join(parts, ":")
	}
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return "", false
	}
	mac = hw.String()
	return mac, canonicalMAC.MatchString(mac)
}
