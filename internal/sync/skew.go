package sync

import (
	"context"
	"time"

	"github.com/kasuganosora/syncbase/internal/model"
)

// TimeServer is the remote half of time-skew negotiation: the client
// sends its current timestamp and gets back the server's own timestamp
// at receipt, over whatever transport the HTTP boundary wires
// (POST /syncGetTime).
type TimeServer interface {
	ServerNow(ctx context.Context, clientStamp time.Time) (time.Time, error)
}

const (
	skewConvergence = 500 * time.Millisecond
	skewMaxAttempts = 10
)

// NegotiateSkew computes Δ such that client_date + Δ tracks server wall
// clock within skewConvergence, or fails with an unstable-connection
// ConfigurationError after skewMaxAttempts.
func NegotiateSkew(ctx context.Context, ts TimeServer, clientNow func() time.Time) (time.Duration, error) {
	var delta time.Duration
	for attempt := 0; attempt < skewMaxAttempts; attempt++ {
		sent := clientNow()
		serverNow, err := ts.ServerNow(ctx, sent.Add(delta))
		if err != nil {
			return 0, err
		}
		reply := serverNow.Sub(sent.Add(delta))
		if reply < skewConvergence && reply > -skewConvergence {
			return delta, nil
		}
		delta += reply
	}
	return 0, model.NewConfigurationError("unstable-connection: time skew did not converge after %d attempts", skewMaxAttempts)
}
