package config

import (
	"os/exec"
	"strings"
)

// Overridable in tests.
var (
	lookPath    = exec.LookPath
	sysctlValue = func(name string) string {
		out, err := exec.Command("sysctl", "-n", name).Output()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}
)

type Detection struct {
	ZFS   bool // zfs tool available
	Jail  bool // jail/jexec/jls available
	RCTL  bool // rctl tool available
	Racct bool // kern.racct.enable=1, required for rctl rules to bite

	Warnings []string
}

// Ready reports whether the host can run sandboxes at all. Resource limits
// degrade gracefully; ZFS and jail tooling do not.
func (d Detection) Ready() bool {
	return d.ZFS && d.Jail
}

// Detect inspects the host for the kernel tooling sandboxes depend on.
func Detect() Detection {
	var det Detection

	if _, err := lookPath("zfs"); err == nil {
		det.ZFS = true
	} else {
		det.Warnings = append(det.Warnings, "zfs not found; copy-on-write sandbox roots unavailable")
	}

	det.Jail = true
	for _, tool := range []string{"jail", "jexec", "jls"} {
		if _, err := lookPath(tool); err != nil {
			det.Jail = false
			det.Warnings = append(det.Warnings, tool+" not found; is this a FreeBSD host?")
		}
	}

	if _, err := lookPath("rctl"); err == nil {
		det.RCTL = true
		if sysctlValue("kern.racct.enable") == "1" {
			det.Racct = true
		} else {
			det.Warnings = append(det.Warnings,
				"kern.racct.enable is not 1; resource limits will not be enforced (set it in /boot/loader.conf)")
		}
	} else {
		det.Warnings = append(det.Warnings, "rctl not found; resource limits will not be enforced")
	}

	return det
}
