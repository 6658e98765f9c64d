package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo holds the parts of a User-Agent string the request log cares about.
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, unknown
	OS         string `json:"os"`          // Android 13, iOS 17, Windows 10, ...
	Platform   string `json:"platform"`    // android, ios, windows, mac, linux, unknown
}

// ParseUserAgent extracts device information from a User-Agent string.
// Most SwiftRide traffic comes from the mobile apps, so the platform
// breakdown drives which push payload formats get exercised.
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Platform: "unknown"}
	}

	parser := ua.New(userAgent)
	osInfo := parser.OSInfo()

	return DeviceInfo{
		DeviceType: deviceType(parser),
		OS:         osName(osInfo.Name, osInfo.Version),
		Platform:   platform(osInfo.Name),
	}
}

func deviceType(parser *ua.UserAgent) string {
	if !parser.Mobile() {
		return "desktop"
	}
	lowered := strings.ToLower(parser.UA())
	for _, hint := range []string{"ipad", "tablet", "kindle", "sm-t"} {
		if strings.Contains(lowered, hint) {
			return "tablet"
		}
	}
	return "mobile"
}

func osName(name, version string) string {
	if name == "" {
		return "Unknown"
	}
	if version == "" {
		return name
	}
	return name + " " + version
}

func platform(osName string) string {
	lowered := strings.ToLower(osName)
	switch {
	case strings.Contains(lowered, "android"):
		return "android"
	case strings.Contains(lowered, "ios"), strings.Contains(lowered, "iphone"):
		return "ios"
	case strings.Contains(lowered, "windows"):
		return "windows"
	case strings.Contains(lowered, "mac"):
		return "mac"
	case strings.Contains(lowered, "linux"), strings.Contains(lowered, "ubuntu"):
		return "linux"
	default:
		return "unknown"
	}
}
