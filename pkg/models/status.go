package models

import "fmt"

// FlightStatus is the real-world outcome of a flight as resolved by oracles.
type FlightStatus uint8

const (
	StatusUnknown     FlightStatus = 0
	StatusOnTime      FlightStatus = 10
	StatusLateAirline FlightStatus = 20
	StatusLateWeather FlightStatus = 30
	StatusCancelled   FlightStatus = 40
	StatusLateOther   FlightStatus = 50
)

func (s FlightStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOnTime:
		return "on_time"
	case StatusLateAirline:
		return "late_airline"
	case StatusLateWeather:
		return "late_weather"
	case StatusCancelled:
		return "cancelled"
	case StatusLateOther:
		return "late_other"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether s is a resolved outcome.
func (s FlightStatus) Terminal() bool {
	switch s {
	case StatusOnTime, StatusLateAirline, StatusLateWeather, StatusCancelled, StatusLateOther:
		return true
	}
	return false
}

// ParseFlightStatus accepts either the numeric code or the name.
func ParseFlightStatus(v string) (FlightStatus, error) {
	for _, s := range []FlightStatus{StatusUnknown, StatusOnTime, StatusLateAirline, StatusLateWeather, StatusCancelled, StatusLateOther} {
		if v == s.String() || v == fmt.Sprintf("%d", uint8(s)) {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("%w: flight status %q", ErrInvalidArgument, v)
}
