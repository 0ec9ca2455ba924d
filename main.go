package main

import (
	"errors"
	"fmt"

	"github.com/fiware/passphrase-pdp/config"
	"github.com/fiware/passphrase-pdp/decision"
	pdpHttp "github.com/fiware/passphrase-pdp/http"
	"github.com/fiware/passphrase-pdp/logging"
	"github.com/fiware/passphrase-pdp/model"
	"github.com/fiware/passphrase-pdp/passphrase"
	"github.com/fiware/passphrase-pdp/token"
	"github.com/gin-gonic/gin"
	"github.com/penglongli/gin-metrics/ginmetrics"
)

var logger = logging.Log()

/**
* Startup method to run the gin-server.
 */
func main() {

	pdpConfig, err := config.Load()
	if err != nil {
		logger.Fatalf("Was not able to load the configuration: %v", err)
	}
	logging.Configure(pdpConfig.LogLevel, pdpConfig.JsonLoggingEnabled, pdpConfig.LogRequests, pdpConfig.LogSkipPaths)

	repo, err := getRepository(pdpConfig)
	if err != nil {
		logger.Fatalf("Was not able to connect the passphrase repository: %v", err)
	}
	if err = pdpHttp.RegisterRepositoryCheck(repo.Ping); err != nil {
		logger.Fatalf("Was not able to register the health check: %v", err)
	}

	signer, err := token.NewSigner(pdpConfig.SigningSecret())
	if err != nil {
		logger.Fatalf("Was not able to create the token signer: %v", err)
	}
	gate := decision.NewGate(token.NewManager(signer), repo, decision.RealClock{})

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(newAuthServer(gate, repo, pdpConfig.CookieSettings()), pdpConfig.MetricsEnabled)

	logger.Infof("Started router at %v", pdpConfig.ServerPort)
	if err = router.Run(fmt.Sprintf("0.0.0.0:%v", pdpConfig.ServerPort)); err != nil {
		logger.Fatalf("Router stopped: %v", err)
	}
}

func getRepository(pdpConfig *config.EnvConfig) (passphrase.PassphraseRepository, error) {
	dsn, err := pdpConfig.MySqlDSN()
	if errors.Is(err, config.ErrNoDatabase) {
		logger.Warn("Passphrase repository is kept in-memory. No persistence will be applied, do NEVER use this for anything but development or testing!")
		return passphrase.NewInMemoryRepo(), nil
	}
	if err != nil {
		return nil, err
	}
	relRepo, err := passphrase.GetMySqlRepository(dsn)
	if err != nil {
		return nil, err
	}
	logger.Infof("Connected to mysql as storage backend.")
	return passphrase.NewSqlRepository(relRepo), nil
}

func newRouter(server *authServer, metricsEnabled bool) *gin.Engine {
	router := gin.New()
	router.Use(logging.GinHandlerFunc(), gin.Recovery())

	if metricsEnabled {
		monitor := ginmetrics.GetMonitor()
		monitor.SetMetricPath("/metrics")
		monitor.Use(router)
	}

	router.GET("/health", pdpHttp.HealthReq)

	// authz for reverse proxies
	router.GET("/authz", server.authz)

	// sessions
	router.GET("/auth", server.listPrivileges)
	events := router.Group("/events/:eventId")
	events.GET("/auth", server.getPrivilege)
	events.POST("/auth", server.login)
	events.POST("/logout", server.logout)
	events.POST("/shareable-link", server.require(model.PrivilegeReadOnly), server.shareableLink)

	// passphrase management
	passphrases := events.Group("/passphrases", server.require(model.PrivilegeManage))
	passphrases.GET("", server.getPassphrases)
	passphrases.POST("", server.createPassphrase)
	passphrases.DELETE("/:id", server.deletePassphrase)
	passphrases.PUT("/:id/derivable-from", server.linkPassphrase)
	passphrases.POST("/:id/revoke", server.revokePassphrase)

	return router
}
