// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSectorReads = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "raid5",
		Name:      "sector_reads",
		Help:      "logical sectors read",
	})
	metricSectorWrites = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "raid5",
		Name:      "sector_writes",
		Help:      "logical sectors written",
	})
	metricReconstructions = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "raid5",
		Name:      "reconstructions",
		Help:      "logical sectors read or written through parity reconstruction",
	})
	metricDriveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "raid5",
		Name:      "drive_failures",
		Help:      "observed drive failures",
	}, []string{"drive"})
	metricResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "raid5",
		Name:      "resyncs",
		Help:      "completed resync runs",
	})
)

func driveLabel(drive int) string {
	return strconv.Itoa(drive)
}
