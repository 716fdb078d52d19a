// Package httpclient builds the shared resty.Client used by every adapter
// and VCS integration that talks HTTP.
package httpclient

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/config"
)

// hclogAdapter adapts an hclog.Logger to resty's minimal log.Logger interface.
type hclogAdapter struct {
	logger hclog.Logger
}

func newHclogAdapter(logger hclog.Logger) resty.Logger {
	return &hclogAdapter{logger: logger}
}

func (a *hclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Infof(format string, v ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// New builds and configures a resty.Client from the shared HTTP config.
func New(logger hclog.Logger, cfg config.HTTPClient) *resty.Client {
	client := resty.New()
	if logger != nil {
		client.SetLogger(newHclogAdapter(logger))
	}

	client.
		SetDebug(cfg.Debug).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.RetryMaxWaitTime).
		SetTimeout(cfg.Timeout).
		SetTLSClientConfig(cfg.TLSConfig())

	if proxy := cfg.Proxy.String(); proxy != "" {
		client.SetProxy(proxy)
	}

	return client
}
