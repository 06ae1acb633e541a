package build

import "github.com/raulk/clock"

// Clock is the global clock for the system. In standard builds it is the
// real monotonic clock, in tests it can be replaced with a mock.
var Clock = clock.New()
