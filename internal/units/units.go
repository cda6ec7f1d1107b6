// Package units provides speed unit conversions. Vehicle dynamics run in
// m/s; telemetry samples and track limits are expressed in km/h.
package units

// KmhToMs converts kilometres per hour to metres per second.
func KmhToMs(kmh float64) float64 {
	return kmh / 3.6
}

// MsToKmh converts metres per second to kilometres per hour.
func MsToKmh(ms float64) float64 {
	return ms * 3.6
}
