package authflow

import "time"

// IsWithinCoolDown reports whether now still falls inside the cool down
// window that began at start. The window is a time.ParseDuration string
// so deployments can tune it without code changes.
func IsWithinCoolDown(start time.Time, window string, now time.Time) (bool, error) {
	d, err := time.ParseDuration(window)
	if err != nil {
		return false, err
	}

	return now.Sub(start) < d, nil
}

// CoolDownExpired is the negation of IsWithinCoolDown. The provider
// resets the failed attempt counter once the window has run out.
func CoolDownExpired(start time.Time, window string, now time.Time) (bool, error) {
	within, err := IsWithinCoolDown(start, window, now)
	if err != nil {
		return false, err
	}

	return !within, nil
}
