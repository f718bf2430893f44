package schedule

import (
	"fmt"
	"time"
	// Embed the IANA zone database so local-time projection works in
	// containers without a zoneinfo directory.
	_ "time/tzdata"
)

// clockLayout renders "08:05 AM" style wall-clock strings for the UI.
const clockLayout = "03:04 PM"

// LoadZone resolves an IANA zone identifier, rejecting empty names (which
// time.LoadLocation would silently treat as UTC).
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// LocalClock projects a stored UTC instant into the session zone's wall
// clock for display ("08:05 AM"). Storage stays UTC; only rendering uses
// the zone.
func LocalClock(utc time.Time, zone string) (string, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return "", err
	}
	return utc.In(loc).Format(clockLayout), nil
}

// LocalDate projects a stored UTC instant into the session zone's calendar
// date (YYYY-MM-DD).
func LocalDate(utc time.Time, zone string) (string, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return "", err
	}
	return utc.In(loc).Format("2006-01-02"), nil
}

// SlotDue computes the UTC instant at which a slot scheduled for a local
// date at timeOfDay ("HH:MM") in zone becomes due. The sweeper compares
// this (plus the grace period) against current UTC time.
func SlotDue(date, timeOfDay, zone string) (time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, err
	}
	local, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeOfDay, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot schedule %q %q: %w", date, timeOfDay, err)
	}
	return local.UTC(), nil
}
