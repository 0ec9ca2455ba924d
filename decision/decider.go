package decision

import (
	"context"
	"time"

	"github.com/fiware/passphrase-pdp/logging"
	"github.com/fiware/passphrase-pdp/model"
)

var logger = logging.Log()

// interface of the configured decider

type Decider interface {
	Authorize(ctx context.Context, rawToken string, eventId int, required model.Privilege) model.Decision
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (c RealClock) Now() time.Time {
	return time.Now()
}
