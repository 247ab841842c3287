// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"github.com/asch/raid5/internal/raid5/blkdev"
)

// The I/O engine walks logical sectors one at a time and advances through the
// caller buffer by one sector per completed logical sector. A first drive
// failure is absorbed: the volume degrades and the same logical sector is
// retried through the reconstruction paths, so the caller still sees success.
// A second failing drive turns the volume failed and the operation returns
// false.

// Read fills data with secCnt logical sectors starting at secNr. data must
// hold at least secCnt sectors. Returns false on invalid arguments or when
// the volume cannot serve the request.
func (v *Volume) Read(secNr int, data []byte, secCnt int) bool {
	if !v.ioArgsOK(secNr, data, secCnt) {
		return false
	}

	for i := 0; i < secCnt; {
		buf := data[i*blkdev.SectorSize : (i+1)*blkdev.SectorSize]
		d, s, _ := locate(secNr+i, v.dev.Devices)

		if v.state == StateDegraded && d == v.failed {
			// The sector lives on the dead drive, serve it as the
			// XOR of the rest of its row.
			if bad := v.xorRow(s, v.failed, buf); bad != noDrive {
				v.fail(bad)
				return false
			}
			metricReconstructions.Inc()
			i++
			continue
		}

		if v.dev.Ops.Read(d, s, buf, 1) != 1 {
			if v.state == StateOK {
				// First loss, retry the same sector degraded.
				v.degrade(d)
				continue
			}
			v.fail(d)
			return false
		}
		i++
	}

	metricSectorReads.Add(float64(secCnt))

	return true
}

// Write stores secCnt logical sectors from data starting at secNr. data must
// hold at least secCnt sectors. Returns false on invalid arguments or when
// the volume cannot serve the request.
func (v *Volume) Write(secNr int, data []byte, secCnt int) bool {
	if !v.ioArgsOK(secNr, data, secCnt) {
		return false
	}

	for i := 0; i < secCnt; {
		buf := data[i*blkdev.SectorSize : (i+1)*blkdev.SectorSize]
		d, s, p := locate(secNr+i, v.dev.Devices)

		if v.state == StateOK {
			if !v.writeHealthy(d, s, p, buf) {
				// Degraded now, retry the same sector.
				continue
			}
		} else if !v.writeDegraded(d, s, p, buf) {
			return false
		}
		i++
	}

	metricSectorWrites.Add(float64(secCnt))

	return true
}

// writeHealthy writes one logical sector with all drives alive: the data
// sector first, then the row parity recomputed from the other columns. Any
// failing drive degrades the volume and the caller retries.
func (v *Volume) writeHealthy(d, s, p int, buf []byte) bool {
	if v.dev.Ops.Write(d, s, buf, 1) != 1 {
		v.degrade(d)
		return false
	}
	if bad := v.xorRow(s, p, v.parity); bad != noDrive {
		v.degrade(bad)
		return false
	}
	if v.dev.Ops.Write(p, s, v.parity, 1) != 1 {
		v.degrade(p)
		return false
	}

	return true
}

// writeDegraded writes one logical sector with one dead drive. Another drive
// failing anywhere in here is the second loss, so false from this function
// means the volume is failed.
func (v *Volume) writeDegraded(d, s, p int, buf []byte) bool {
	switch {
	case d == v.failed:
		// The data sector itself is unreachable. Fold the new value
		// into the row parity instead, so the row reconstructs to the
		// new data until a resync materializes it on a replacement
		// drive.
		if bad := v.xorRowOverride(s, p, d, buf, v.parity); bad != noDrive {
			v.fail(bad)
			return false
		}
		if v.dev.Ops.Write(p, s, v.parity, 1) != 1 {
			v.fail(p)
			return false
		}
		metricReconstructions.Inc()

	case p == v.failed:
		// The row parity is unreachable, the data write alone keeps
		// the stripe consistent.
		if v.dev.Ops.Write(d, s, buf, 1) != 1 {
			v.fail(d)
			return false
		}

	default:
		// Both the target and the parity are alive, the dead drive is
		// a third column of the row. Its logical content must survive
		// this write, so reconstruct it first and fold it back into
		// the new parity.
		if bad := v.xorRow(s, v.failed, v.dead); bad != noDrive {
			v.fail(bad)
			return false
		}
		if v.dev.Ops.Write(d, s, buf, 1) != 1 {
			v.fail(d)
			return false
		}
		if bad := v.xorRowOverride(s, p, v.failed, v.dead, v.parity); bad != noDrive {
			v.fail(bad)
			return false
		}
		if v.dev.Ops.Write(p, s, v.parity, 1) != 1 {
			v.fail(p)
			return false
		}
		metricReconstructions.Inc()
	}

	return true
}

// ioArgsOK validates one Read/Write request. Rejection never mutates state.
func (v *Volume) ioArgsOK(secNr int, data []byte, secCnt int) bool {
	if v.state != StateOK && v.state != StateDegraded {
		return false
	}
	if secNr < 0 || secCnt < 0 || secNr+secCnt > v.size {
		return false
	}
	if secCnt > 0 && (data == nil || len(data) < secCnt*blkdev.SectorSize) {
		return false
	}

	return true
}
