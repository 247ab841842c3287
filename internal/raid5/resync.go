// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"github.com/rs/zerolog/log"
)

// Resync restores full redundancy after the dead drive was replaced. Every
// data row of the replacement is rebuilt as the XOR of the surviving columns,
// then the headers are rewritten with no failed drive, the freshly synced
// drive first. On anything but a degraded volume Resync is a no-op returning
// the current state.
//
// A read failure during reconstruction is a second loss and fails the volume.
// A write failure on the replacement leaves the volume degraded as before. A
// header write failure on another drive afterwards re-degrades the volume
// with that drive as the new failed one.
func (v *Volume) Resync() State {
	if v.state != StateDegraded {
		return v.state
	}

	synced := v.failed
	for s := 0; s < v.rows; s++ {
		if bad := v.xorRow(s, synced, v.dead); bad != noDrive {
			v.fail(bad)
			return v.state
		}
		if v.dev.Ops.Write(synced, s, v.dead, 1) != 1 {
			log.Warn().Int("drive", synced).Int("row", s).Msg("resync write failed")
			return v.state
		}
	}

	if !v.writeHeader(synced, header{failed: noDrive, gen: v.gen}) {
		log.Warn().Int("drive", synced).Msg("resync header write failed")
		return v.state
	}
	for d := 0; d < v.dev.Devices; d++ {
		if d == synced {
			continue
		}
		if !v.writeHeader(d, header{failed: noDrive, gen: v.gen}) {
			v.degrade(d)
			return v.state
		}
	}

	v.state = StateOK
	v.failed = noDrive
	metricResyncs.Inc()
	log.Info().Int("drive", synced).Msg("resync complete, volume ok")

	return v.state
}
