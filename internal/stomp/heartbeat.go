package stomp

import (
	"strconv"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// FormatHeartBeat renders a heart-beat header value. Zero disables a
// direction.
func FormatHeartBeat(out, in time.Duration) string {
	return strconv.FormatInt(out.Milliseconds(), 10) + "," + strconv.FormatInt(in.Milliseconds(), 10)
}

// ParseHeartBeat reads a heart-beat header value. An absent header means
// no heart-beating in either direction.
func ParseHeartBeat(v string) (out, in time.Duration, err error) {
	if v == "" {
		return 0, 0, nil
	}
	return frame.ParseHeartBeat(v)
}

// Negotiate applies the STOMP heart-beat rules from one side's point of
// view. ourOut/ourIn are what this side offered; theirOut/theirIn what the
// peer answered. send is how often this side must emit something, expect
// how often it should hear from the peer. Zero disables either.
func Negotiate(ourOut, ourIn, theirOut, theirIn time.Duration) (send, expect time.Duration) {
	if ourOut > 0 && theirIn > 0 {
		send = max(ourOut, theirIn)
	}
	if ourIn > 0 && theirOut > 0 {
		expect = max(ourIn, theirOut)
	}
	return send, expect
}
