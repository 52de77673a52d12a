package core

import (
	"runtime"
	"strings"
)

// Platform identifies the machine rules and native classifiers are matched against.
type Platform struct {
	OS      string // windows, linux, osx (macos and darwin are accepted)
	Arch    string // x86_64, aarch64, x86, arm
	Version string // optional OS version, matched by os.version rules
}

// CurrentPlatform describes the running process
func CurrentPlatform() Platform {
	// Map Go names to Mojang names
	osMap := map[string]string{
		"darwin":  "osx",
		"linux":   "linux",
		"windows": "windows",
	}
	archMap := map[string]string{
		"amd64": "x86_64",
		"arm64": "aarch64",
		"386":   "x86",
		"arm":   "arm",
	}

	p := Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
	if mapped, ok := osMap[p.OS]; ok {
		p.OS = mapped
	}
	if mapped, ok := archMap[p.Arch]; ok {
		p.Arch = mapped
	}
	return p
}

// OSKey returns the OS name as the manifest spells it.
func (p Platform) OSKey() string {
	name := strings.ToLower(p.OS)
	switch name {
	case "macos", "darwin", "mac":
		return "osx"
	}
	return name
}

// Bits returns "64" or "32", used to expand ${arch} in native classifiers.
func (p Platform) Bits() string {
	switch strings.ToLower(p.Arch) {
	case "x86", "i386", "i686", "386", "arm":
		return "32"
	}
	return "64"
}

// ClasspathSeparator is the separator java expects on this platform.
func (p Platform) ClasspathSeparator() string {
	if p.OSKey() == "windows" {
		return ";"
	}
	return ":"
}
