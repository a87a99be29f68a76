package auth

import "strings"

// ParseDeviceInfo classifies a User-Agent header into coarse browser, OS,
// device and platform buckets. The output feeds session display and the
// per-device dedup signature; it intentionally stays at family granularity.
func ParseDeviceInfo(userAgent string) DeviceInfo {
	ua := strings.ToLower(userAgent)
	info := DeviceInfo{
		Browser:  "Unknown",
		OS:       "Unknown",
		Device:   "Desktop",
		Platform: "Unknown",
	}
	if strings.TrimSpace(ua) == "" {
		return info
	}

	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge"):
		info.Browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		info.Browser = "Opera"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	case strings.Contains(ua, "curl"), strings.Contains(ua, "wget"),
		strings.Contains(ua, "httpie"), strings.Contains(ua, "go-http-client"):
		info.Browser = "CLI"
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		info.OS = "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		info.Device = "Tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "iphone"),
		strings.Contains(ua, "android"):
		info.Device = "Mobile"
	}

	switch info.OS {
	case "Android", "iOS":
		info.Platform = "Mobile"
	case "Windows", "macOS", "Linux":
		info.Platform = "Desktop"
	}

	return info
}
