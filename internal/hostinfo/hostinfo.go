package hostinfo

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/shirou/gopsutil/v3/host"
)

// Info describes the host whose routing socket this daemon observes. It
// rides on outbound events and the status API.
type Info struct {
	Hostname      string
	Platform      string
	KernelVersion string
}

// Collect reads the host identity from the OS.
func Collect() (Info, error) {
	hi, err := host.Info()
	if err != nil {
		return Info{}, fmt.Errorf("read host info: %w", err)
	}

	platform := hi.Platform
	if hi.PlatformVersion != "" {
		platform = fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion)
	}

	return Info{
		Hostname:      hi.Hostname,
		Platform:      platform,
		KernelVersion: hi.KernelVersion,
	}, nil
}

// KernelAtLeast reports whether the running kernel release is at least
// min (a "major.minor.patch" string). Only the numeric release in front
// of the distro suffix is compared. Releases that do not parse count as
// new enough, so an exotic release string never disables functionality.
func (i Info) KernelAtLeast(min string) bool {
	release, _, _ := strings.Cut(i.KernelVersion, "-")
	v, err := semver.NewVersion(release)
	if err != nil {
		return true
	}
	return !v.LessThan(semver.MustParse(min))
}
