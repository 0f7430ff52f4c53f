// Package cameraid parses and formats the camera identifier strings the
// collaborator camera driver layer hands to the Image Store (spec.md's
// camera driver is out of scope; only the id format survives as a shared
// convention). Grounded line-for-line on
// original_source/python-backend/core/camera_identifier.py's
// CameraIdentifier.
package cameraid

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Type is the closed set of camera source kinds.
type Type string

const (
	USB  Type = "usb"
	Test Type = "test"
	IP   Type = "ip"
)

// Parsed is a camera id split into its type and source. Source holds the
// USB index as a decimal string, the IP address, or "" for a test camera.
type Parsed struct {
	Type   Type
	Source string
}

// Parse splits camera_id into (type, source), defaulting to usb_0 on any
// unrecognized or malformed input. Every fallback path logs a warning
// through logger, if given, matching the original's logged defaulting
// behavior.
func Parse(cameraID string, logger *zap.Logger) Parsed {
	if cameraID == "" {
		warn(logger, "empty camera_id, defaulting to usb_0", cameraID)
		return Parsed{Type: USB, Source: "0"}
	}

	if cameraID == string(Test) {
		return Parsed{Type: Test}
	}

	if rest, ok := strings.CutPrefix(cameraID, "usb_"); ok {
		if _, err := strconv.Atoi(rest); err != nil {
			warn(logger, "invalid usb camera_id, defaulting to usb_0", cameraID)
			return Parsed{Type: USB, Source: "0"}
		}
		return Parsed{Type: USB, Source: rest}
	}

	if rest, ok := strings.CutPrefix(cameraID, "ip_"); ok {
		if rest == "" {
			warn(logger, "invalid ip camera_id, defaulting to usb_0", cameraID)
			return Parsed{Type: USB, Source: "0"}
		}
		return Parsed{Type: IP, Source: rest}
	}

	warn(logger, "unknown camera_id format, defaulting to usb_0", cameraID)
	return Parsed{Type: USB, Source: "0"}
}

func warn(logger *zap.Logger, msg, cameraID string) {
	if logger != nil {
		logger.Warn(msg, zap.String("camera_id", cameraID))
	}
}

// Format renders (type, source) back into a camera id string. An empty
// source on a USB camera defaults to index 0.
func Format(t Type, source string) (string, error) {
	switch t {
	case Test:
		return string(Test), nil
	case USB:
		if source == "" {
			source = "0"
		}
		return fmt.Sprintf("usb_%s", source), nil
	case IP:
		if source == "" {
			return "", fmt.Errorf("ip camera requires a source address")
		}
		return fmt.Sprintf("ip_%s", source), nil
	default:
		return "", fmt.Errorf("unknown camera type: %s", t)
	}
}

// Validate reports whether cameraID has a well-formed usb_N, ip_ADDR, or
// "test" shape without applying any defaulting.
func Validate(cameraID string) bool {
	if cameraID == "" {
		return false
	}
	if cameraID == string(Test) {
		return true
	}
	if rest, ok := strings.CutPrefix(cameraID, "usb_"); ok {
		_, err := strconv.Atoi(rest)
		return err == nil
	}
	if rest, ok := strings.CutPrefix(cameraID, "ip_"); ok {
		return rest != ""
	}
	return false
}

// IsTestCamera reports whether cameraID is exactly the test camera id.
func IsTestCamera(cameraID string) bool { return cameraID == string(Test) }

// IsUSBCamera reports whether cameraID has the usb_ prefix.
func IsUSBCamera(cameraID string) bool { return strings.HasPrefix(cameraID, "usb_") }

// IsIPCamera reports whether cameraID has the ip_ prefix.
func IsIPCamera(cameraID string) bool { return strings.HasPrefix(cameraID, "ip_") }
