package main

import (
	"context"
	"flag"
	"time"

	"github.com/fetmkr/ewcs"
	log "github.com/sirupsen/logrus"
)

var configFile = flag.String("config", "ewcs.toml", "station configuration file")
var testMode = flag.Bool("testmode", false, "generate simulated sensor data")
var debug = flag.Bool("debug", false, "log protocol traffic")

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx := context.Background()

	cfg, err := ewcs.LoadConfig(*configFile)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}

	var source ewcs.SnapshotSource
	if *testMode {
		source = ewcs.NewSimulatedSource(cfg.StationName)
	} else {
		source = &ewcs.NullSource{StationName: cfg.StationName}
	}

	station := ewcs.NewStation(cfg, source, ewcs.NewSystemControl())
	station.Start(ctx)

	// give the PIC24 link a moment to come up, then keep the host
	// clock aligned with the device RTC
	time.Sleep(5 * time.Second)
	for {
		t, err := station.SyncClock()
		if err != nil {
			log.WithField("err", err).Warn("clock sync failed")
		} else {
			log.WithField("time", t).Info("clock synced")
		}
		time.Sleep(time.Hour)
	}
}
