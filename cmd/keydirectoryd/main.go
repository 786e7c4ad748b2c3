// Command keydirectoryd runs the OpenPGP public key directory service:
// config load, storage backend selection, the Key Directory, its HTTP
// surface, and a background purge worker.
package main

import (
	"crypto/tls"
	"flag"
	"net/http"
	"os"

	"github.com/bugsnag/bugsnag-go"
	"github.com/bugsnag/panicwrap"
	"github.com/certifi/gocertifi"
	raven "github.com/getsentry/raven-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"keydirectory/internal/config"
	"keydirectory/internal/directory"
	"keydirectory/internal/httpapi"
	"keydirectory/internal/mailer"
	"keydirectory/internal/storage"
	"keydirectory/internal/storage/leveldbstore"
	"keydirectory/internal/storage/pgstore"
	"keydirectory/internal/validate"
)

func init() {
	if os.Getenv("KEYDIRECTORY_DEBUG") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	// Re-exec under panicwrap so a panic on a goroutine the HTTP server's
	// own recovery middleware never sees (the purge worker, the metrics
	// listener) still gets reported before the process dies.
	exitStatus, err := panicwrap.BasicWrap(func(output string) {
		raven.CaptureMessage(output, map[string]string{"component": "keydirectory-panic"})
	})
	if err != nil {
		logrus.WithError(err).Fatal("panicwrap setup failed")
	}
	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	confPath := flag.String("config", "", "path to keydirectory.conf (defaults to a file next to the binary)")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	if cfg.Sentry.DSN != "" {
		if err := raven.SetDSN(cfg.Sentry.DSN); err != nil {
			log.WithError(err).Warn("configuring sentry")
		}
		if rootCAs, err := gocertifi.CACerts(); err != nil {
			log.WithError(err).Warn("loading gocertifi CA bundle for sentry transport")
		} else {
			raven.DefaultClient.Transport = &raven.HTTPTransport{
				Client: &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: rootCAs}}},
			}
		}
		bugsnag.Configure(bugsnag.Configuration{
			APIKey:       cfg.Sentry.DSN,
			ReleaseStage: "production",
		})
	}

	store, closeStore, err := openStorage(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("opening storage backend")
	}
	defer closeStore()

	mail := &mailer.SMTPMailer{Addr: cfg.Mailer.Addr, From: cfg.Mailer.From}

	var domain *validate.DomainPolicy
	if cfg.PublicKey.RestrictUserOrigin {
		domain, err = validate.NewDomainPolicy(cfg.PublicKey.RestrictionRegEx)
		if err != nil {
			log.WithError(err).Fatal("compiling restrictionRegEx")
		}
	}

	dir := directory.New(cfg.PublicKey, store, mail, domain)
	dir.StartPurgeWorker()
	defer dir.Stop()

	go func() {
		log.Info("metrics listening on :9090/metrics")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.WithError(err).Error("metrics server exited")
		}
	}()

	handler := httpapi.NewHandler(dir, "https", log)
	// bugsnag.Handler wraps with panic recovery + report, the only place
	// the teacher's bugsnag-go carry-over is exercised; raven-go stays the
	// explicit-capture path via apperr.Report.
	recovered := bugsnag.Handler(handler)

	log.WithField("addr", cfg.HTTPAddr).Info("keydirectoryd listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, recovered); err != nil {
		log.WithError(err).Fatal("http server exited")
	}
}

func openStorage(cfg config.Storage) (storage.Port, func(), error) {
	switch cfg.Backend {
	case "postgres":
		s, err := pgstore.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := leveldbstore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
