package main

// qsim runs one traffic simulation from its input files:
//
//	qsim -net network.yaml -plans plans.yaml [-config config.yaml] [-changes changes.yaml]
//	     [-out trace.yaml] [-monitor :8080] [-deadline 10m] [-workers 4]

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/iti/qsim"
	"github.com/sirupsen/logrus"
)

func main() {
	netFile := flag.String("net", "", "network description (yaml or json)")
	plansFile := flag.String("plans", "", "plans description (yaml or json)")
	cfgFile := flag.String("config", "", "simulation configuration (yaml or json)")
	changesFile := flag.String("changes", "", "network change events (yaml or json)")
	outFile := flag.String("out", "", "file the event trace is written to")
	monitor := flag.String("monitor", "", "address of the http monitor, e.g. :8080")
	deadline := flag.Duration("deadline", 0, "wall-clock limit of the run")
	workers := flag.Int("workers", 0, "number of partitions stepped in parallel, overrides the configuration")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	syn := map[string]string{"network": *netFile, "plans": *plansFile, "config": *cfgFile, "changes": *changesFile}

	nd, pd, cfg, cel, err := qsim.GetScenarioDicts(syn)
	if err != nil {
		entry.WithError(err).Fatal("reading input")
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	sc, err := qsim.BuildScenarioFromDicts(nd, pd, cfg, cel, *outFile != "", entry)
	if err != nil {
		entry.WithError(err).Fatal("building scenario")
	}
	entry.WithFields(logrus.Fields{"trace": sc.Trace.Active(), "workers": cfg.Workers}).Debug("scenario built")

	if *monitor != "" {
		r := mux.NewRouter()
		qsim.NewMonitorHandler(sc.Engine).RegisterRoutes(r)
		go func() {
			entry.Infof("monitor running on %s", *monitor)
			if err := http.ListenAndServe(*monitor, r); err != nil {
				entry.WithError(err).Error("monitor stopped")
			}
		}()
	}

	ctx := context.Background()
	if *deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *deadline)
		defer cancel()
	}

	start := time.Now()
	runErr := sc.Engine.Run(ctx)

	stats := sc.Engine.Stats()
	entry.WithFields(logrus.Fields{"arrived": stats.Arrived, "lost": stats.Lost, "steps": stats.Steps,
		"wall": time.Since(start).String()}).Info("run complete")

	if sc.Trace.Active() {
		if err := sc.Trace.WriteToFile(*outFile); err != nil {
			entry.WithError(err).Error("writing trace")
			os.Exit(1)
		}
	}
	if runErr != nil {
		os.Exit(1)
	}
}
