package auth

import "time"

// timeNow is swapped in tests to pin session expiry.
var timeNow = time.Now
