package prefs

import "time"

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

const (
	endpointPrefs       = "/preferences/"
	endpointPrefsSet    = "/preferences/set"
	endpointPrefsRemove = "/preferences/remove"
	endpointPrefsClear  = "/preferences/clear"
)
