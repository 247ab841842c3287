// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// raid5 is a userspace daemon assembling a software RAID-5 volume over an
// array of sector addressable drives. The drive array can live in regular
// files, in memory or in an S3 bucket, the volume logic is the same for all
// of them.
//
// Project structure is following:
//
// - internal contains all packages used by this program. The name "internal"
// is reserved by go compiler and disallows its imports from different
// projects. Since we don't provide any reusable packages, we use internal
// directory.
//
// - internal/raid5 contains the volume itself: geometry, parity math, header
// reconciliation and the degraded mode I/O engine. See the package
// descriptions in the source code for more details.
//
// - internal/raid5/blkdev contains the drive interface and its backends.
//
// - internal/raid5/volproxy serializes concurrent access to the volume.
//
// - internal/config contains configuration package which is common for all
// backends.
package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/asch/raid5/internal/config"
	"github.com/asch/raid5/internal/raid5"
	"github.com/asch/raid5/internal/raid5/blkdev"
	"github.com/asch/raid5/internal/raid5/blkdev/filedisk"
	"github.com/asch/raid5/internal/raid5/blkdev/memdisk"
	"github.com/asch/raid5/internal/raid5/blkdev/s3disk"
	"github.com/asch/raid5/internal/raid5/volproxy"
)

// Parse configuration from file and environment variables, build the drive
// backend and assemble the volume on it. The volume is served until SIGINT or
// SIGTERM asks for a graceful stop, which persists the headers.
func main() {
	err := config.Configure()
	if err != nil {
		log.Panic().Err(err).Send()
	}

	loggerSetup(config.Cfg.Log.Pretty, config.Cfg.Log.Level)

	if config.Cfg.Profiler {
		runProfiler(config.Cfg.ProfilerPort)
	}
	if config.Cfg.Metrics {
		runMetrics(config.Cfg.MetricsPort)
	}

	dev, err := getDevice()
	if err != nil {
		log.Panic().Err(err).Send()
	}

	if config.Cfg.Format && !raid5.Create(dev) {
		log.Panic().Msg("formatting the drive array failed")
	}

	vol := raid5.New()
	state := vol.Start(dev)
	if state == raid5.StateFailed {
		log.Panic().Msg("volume did not assemble, check the drives")
	}

	proxy := volproxy.New(vol)

	if config.Cfg.Resync && state == raid5.StateDegraded {
		state = proxy.Resync()
		log.Info().Stringer("state", state).Msg("resync finished")
	}

	log.Info().Int("sectors", vol.Size()).Msgf("raid5 volume up on %d drives", dev.Devices)

	waitForShutdown()

	proxy.Stop()
}

// Builds the drive array backend selected in the configuration.
func getDevice() (blkdev.Device, error) {
	dev := blkdev.Device{
		Devices: config.Cfg.Devices,
		Sectors: config.Cfg.Sectors,
	}

	var err error
	switch config.Cfg.Backend {
	case "file":
		dev.Ops, err = filedisk.New(config.Cfg.File.Dir, dev.Devices, dev.Sectors)
	case "mem":
		dev.Ops = memdisk.New(dev.Devices, dev.Sectors)
	case "s3":
		dev.Ops, err = s3disk.New(s3disk.Options{
			Remote:    config.Cfg.S3.Remote,
			Region:    config.Cfg.S3.Region,
			Bucket:    config.Cfg.S3.Bucket,
			AccessKey: config.Cfg.S3.AccessKey,
			SecretKey: config.Cfg.S3.SecretKey,
			Devices:   dev.Devices,
			Sectors:   dev.Sectors,
		})
	default:
		err = fmt.Errorf("unknown backend %q", config.Cfg.Backend)
	}

	return dev, err
}

// Block until SIGINT or SIGTERM comes in.
func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	signal.Notify(stopChan, syscall.SIGTERM)
	<-stopChan
	log.Info().Msg("Received interrupt, stopping the volume!")
}

func loggerSetup(pretty bool, level int) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// Expose prometheus metrics of the I/O path.
func runMetrics(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info().Err(http.ListenAndServe(fmt.Sprintf("localhost:%d", port), mux)).Send()
	}()
}

// Enables remote profiling support. Useful for perfomance debugging.
func runProfiler(port int) {
	go func() {
		log.Info().Err(http.ListenAndServe(fmt.Sprintf("localhost:%d", port), nil)).Send()
	}()
}
