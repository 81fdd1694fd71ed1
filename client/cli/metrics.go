package cli

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsHandler serves the liveness probe and the metrics, which
// require the access token as a bearer token or access_token parameter.
func NewMetricsHandler(prom client.PrometheusConfig) http.Handler {
	router := chi.NewRouter()

	router.Get("/probes/liveness", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		accessToken := r.Header.Get("Authorization")
		if strings.HasPrefix(accessToken, "Bearer ") {
			accessToken = accessToken[len("Bearer "):]
		} else {
			accessToken = r.FormValue("access_token")
		}

		if accessToken == "" || accessToken != prom.AccessToken {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		promhttp.Handler().ServeHTTP(w, r)
	})

	return router
}

// serveMetrics serves handler on l until ctx is done.
func serveMetrics(ctx context.Context, l net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler: handler,
	}

	startErrCh := make(chan error, 1)

	go func() {
		defer close(startErrCh)

		startErrCh <- errors.Annotate(server.Serve(l), "serve metrics")
	}()

	select {
	case <-ctx.Done():
	case err := <-startErrCh:
		return errors.Trace(err)
	}

	err := errors.Trace(server.Close())

	if startErr := <-startErrCh; startErr != nil {
		err = errors.Trace(startErr)
	}

	if !multierr.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}

	return nil
}
