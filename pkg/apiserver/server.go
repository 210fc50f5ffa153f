package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/localdns/localdns/pkg/backend"
	"github.com/sirupsen/logrus"
)

type apiServer struct {
	ctx      context.Context
	log      *logrus.Entry
	port     int
	apiToken string
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, port int, apiToken string) *apiServer {
	return &apiServer{
		ctx:      ctx,
		log:      log,
		port:     port,
		apiToken: apiToken,
	}
}

func (a *apiServer) Start(back backend.Backend) error {
	router, err := a.buildRouter(back)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: handlers.CORS()(router),
	}

	go func() {
		a.log.WithField("port", a.port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}

func (a *apiServer) buildRouter(back backend.Backend) (*mux.Router, error) {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(a.log))
	h := newHandler(back)

	// When functioning properly, these routes return the running version
	router.Path("/").HandlerFunc(h.root)
	router.Path("/healthz").HandlerFunc(h.root)

	api := router.PathPrefix("/v1").Subrouter()
	if a.apiToken != "" {
		authMiddleware, err := tokenAuthMiddleware(a.apiToken)
		if err != nil {
			return nil, err
		}
		api.Use(authMiddleware)
	}

	api.Path("/records").Methods("GET").HandlerFunc(h.listRecords)
	api.Path("/records").Methods("POST").HandlerFunc(h.createRecord)
	api.Path("/records/{id}").Methods("GET").HandlerFunc(h.getRecord)
	api.Path("/records/{id}").Methods("PUT").HandlerFunc(h.updateRecord)
	api.Path("/records/{id}").Methods("DELETE").HandlerFunc(h.deleteRecord)

	api.Path("/logs").Methods("GET").HandlerFunc(h.recentLogs)

	api.Path("/settings").Methods("GET").HandlerFunc(h.listSettings)
	api.Path("/settings/{key}").Methods("PUT").HandlerFunc(h.updateSetting)

	// Note: this allows not found urls to be logged via the middleware.
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	return router, nil
}
