// Package device reads running configurations from switches over SSH.
package device

import (
	"net"
	"strconv"
	"strings"

	"github.com/swsync-network/swsync/pkg/util"
)

// Operating system families a device may run.
const (
	OSIOSXE   = "iosxe"
	OSIOS     = "ios"
	OSNXOS    = "nxos"
	OSGeneric = "generic"
)

// DefaultSSHPort is used when a target has no port.
const DefaultSSHPort = 22

// Target identifies one device to read from.
type Target struct {
	Name string
	Host string
	Port int

	// OS is the operating system family derived from the platform.
	OS string

	// Platform is the NetBox platform slug, or the OS family when the
	// device has no platform.
	Platform string
}

// NewTarget builds a target from inventory data. platformSlug and
// platformName may be empty.
func NewTarget(name, host, platformSlug, platformName string) *Target {
	os := DetectOS(platformSlug, platformName)
	if os == OSGeneric {
		util.WithDevice(name).Warnf("Platform %q unmapped, using OS %q", platformSlug, OSGeneric)
	}
	platform := platformSlug
	if platform == "" {
		platform = os
	}
	return &Target{Name: name, Host: host, Port: DefaultSSHPort, OS: os, Platform: platform}
}

// Address returns host:port.
func (t *Target) Address() string {
	port := t.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// DetectOS maps a platform slug and name to an OS family. IOS-XE is checked
// before IOS since its slugs contain "ios".
func DetectOS(slug, name string) string {
	slug = strings.ToLower(slug)
	name = strings.ToLower(name)

	switch {
	case strings.Contains(slug, "iosxe"), strings.Contains(slug, "ios-xe"), strings.Contains(name, "ios xe"):
		return OSIOSXE
	case strings.Contains(slug, "ios"), strings.Contains(name, "ios"):
		return OSIOS
	case strings.Contains(slug, "nxos"), strings.Contains(slug, "nx-os"):
		return OSNXOS
	}
	return OSGeneric
}
