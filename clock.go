package railz

import "github.com/zoobzio/clockz"

// Clock provides time for rail statistics. Use a fake clock for
// deterministic tests.
type Clock = clockz.Clock

// RealClock is the default Clock using standard time.
var RealClock Clock = clockz.RealClock
