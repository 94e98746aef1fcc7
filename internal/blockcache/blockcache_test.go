package blockcache_test

import "time"

// Common values for tests.
const (
	testKey = "key"
	testVal = 123

	absentKey = "absent"

	testExpire = 100 * time.Millisecond
)
