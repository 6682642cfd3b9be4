// internal/status/constants.go
package status

// Link health codes.
// Values are stable: they are exported as metrics and published over MQTT.

// HealthUnknown is the state before the first poll cycle.
const HealthUnknown uint16 = 0

// HealthOK means the last cycle read every register.
const HealthOK uint16 = 1

// HealthError means the last cycle was aborted by a link failure.
const HealthError uint16 = 2

// HealthDegraded means the last cycle completed but some registers failed;
// their values are stale.
const HealthDegraded uint16 = 3

// HealthDisabled means polling is not running.
const HealthDisabled uint16 = 4

// MaxSecondsInError caps SecondsInError so it never wraps.
const MaxSecondsInError = 65535

// HealthName returns the text form of a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthDegraded:
		return "degraded"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
