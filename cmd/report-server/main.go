package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/bpsreport/report-server/api"
	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/upload"
	"github.com/bpsreport/report-server/ws"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:5000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		os.Exit(0)
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	uploads, err := upload.NewStore(globalConfig.UploadsConfig.Dir)
	if err != nil {
		panic(err)
	}

	cronRunner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = cronRunner.AddFunc(globalConfig.UploadsConfig.SweepSpec, func() {
		if err := uploads.Sweep(persister); err != nil {
			globals.AppLogger.Error("upload sweep failed", "error", err)
		}
	})
	if err != nil {
		panic(err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	hub := ws.NewHub(globalConfig, persister)
	go hub.Run()

	server := api.NewServer(globalConfig, persister, hub, uploads)

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, server.Router())
	} else {
		err = http.ListenAndServe(*addr, server.Router())
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
