package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fiware/passphrase-pdp/logging"
	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v5"
)

const repositoryCheckTimeout = 2 * time.Second

var logger = logging.Log()

var healthCheck *health.Health

func init() {
	healthCheck, _ = health.New(health.WithComponent(health.Component{
		Name: "passphrase-pdp",
	}))
}

/**
* Registers the reachability of the passphrase repository as part of the health status.
 */
func RegisterRepositoryCheck(ping func(ctx context.Context) error) error {
	return healthCheck.Register(health.Config{
		Name:    "passphrase-repository",
		Timeout: repositoryCheckTimeout,
		Check: func(ctx context.Context) error {
			err := ping(ctx)
			if err != nil {
				logger.Warnf("Passphrase repository is not reachable: %v", err)
			}
			return err
		},
	})
}

func HealthReq(c *gin.Context) {
	checkResult := healthCheck.Measure(c.Request.Context())
	if checkResult.Status == health.StatusOK {
		c.AbortWithStatusJSON(http.StatusOK, checkResult)
	} else {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, checkResult)
	}
}

func Health() *health.Health {
	return healthCheck
}
