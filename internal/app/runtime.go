package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// testModeEnv makes both binaries exit before touching the network.
const testModeEnv = "BACKOFFICE_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether runtime startup should be skipped. The
// environment is read once and cached until RefreshTestMode.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new value.
// Any value accepted by strconv.ParseBool is honoured.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(&on)
	return on
}
