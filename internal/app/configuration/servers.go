package configuration

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map

// StartServer serves e at address. A path in address mounts e under that prefix, so
// http://:8080/compat serves /compat/matrix as /matrix. Only one server may run per host.
func StartServer(address string, e *echo.Echo, config Config) (*http.Server, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, errors.Wrap(err, "parse server address")
	}

	s, err := newServer(u, e, config)
	if err != nil {
		return nil, err
	}
	if _, loaded := servers.LoadOrStore(u.Host, s); loaded {
		return nil, fmt.Errorf("server already running at %s", u.Host)
	}

	go func() {
		var err error
		if config.TLSCertFile != "" && config.TLSKeyFile != "" {
			err = s.ListenAndServeTLS(config.TLSCertFile, config.TLSKeyFile)
		} else {
			err = s.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	log.Infof("serving admin api at %s", u.String())
	return s, nil
}

func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, _ interface{}) bool {
		server, loaded := servers.LoadAndDelete(key)
		if loaded {
			if err := server.(*http.Server).Shutdown(ctx); err != nil {
				log.Error(err)
			}
		}
		return true
	})
}

func newServer(u *url.URL, e *echo.Echo, config Config) (*http.Server, error) {
	s := http.Server{
		Addr:    u.Host,
		Handler: e,
	}

	if config.TLSCAFile != "" {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, errors.New("cannot run in mTLS mode without TLS cert and key")
		}

		caCertFile, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			return nil, errors.Wrap(err, "error reading CA certificate")
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCertFile)
		s.TLSConfig = &tls.Config{
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	if path := strings.TrimRight(u.Path, "/"); path != "" {
		e.Pre(middleware.Rewrite(map[string]string{
			path + "/*": "/$1",
		}))
	}

	return &s, nil
}
