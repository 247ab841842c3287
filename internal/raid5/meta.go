// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"encoding/binary"

	"github.com/rs/zerolog/log"

	"github.com/asch/raid5/internal/raid5/blkdev"
)

// Every drive carries a header in its last sector: the index of the failed
// drive (or -1) and a generation counter bumped on every clean stop. The
// remaining bytes of the sector are zero. On start the headers of the first
// three drives are reconciled by majority: after any clean stop at least
// devices-1 drives carry identical headers, so three of them are enough to
// tell a healthy array, a degraded array and an unrecoverable one apart.

const headerSize = 8

type header struct {
	failed int
	gen    uint32
}

func encodeHeader(buf []byte, h header) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(h.failed)))
	binary.LittleEndian.PutUint32(buf[4:8], h.gen)
}

func decodeHeader(buf []byte) header {
	return header{
		failed: int(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		gen:    binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// Create provisions the headers on a fresh drive set: no failed drive,
// generation zero. Data sectors are left untouched, a freshly created array
// is expected on zeroed drives where the parity invariant holds trivially.
func Create(dev blkdev.Device) bool {
	if !dev.Valid() || blkdev.SectorSize < headerSize {
		return false
	}

	buf := make([]byte, blkdev.SectorSize)
	encodeHeader(buf, header{failed: noDrive, gen: 0})

	row := dev.Sectors - 1
	for d := 0; d < dev.Devices; d++ {
		if dev.Ops.Write(d, row, buf, 1) != 1 {
			log.Error().Int("drive", d).Msg("header write failed, create aborted")
			return false
		}
	}

	return true
}

func (v *Volume) headerRow() int {
	return v.dev.Sectors - 1
}

func (v *Volume) readHeader(drive int) (header, bool) {
	if v.dev.Ops.Read(drive, v.headerRow(), v.tmp, 1) != 1 {
		return header{}, false
	}

	return decodeHeader(v.tmp), true
}

func (v *Volume) writeHeader(drive int, h header) bool {
	encodeHeader(v.tmp, h)

	return v.dev.Ops.Write(drive, v.headerRow(), v.tmp, 1) == 1
}

// reconcile reads the headers of the first three drives and derives the
// volume state. The array tolerates one lost drive, so any header combination
// implying two simultaneous losses is unrecoverable.
func (v *Volume) reconcile() (State, int, uint32) {
	var hdrs [3]header
	var alive [3]bool

	n := 0
	for d := 0; d < 3; d++ {
		hdrs[d], alive[d] = v.readHeader(d)
		if alive[d] {
			n++
		}
	}

	switch n {
	case 3:
		return v.reconcileFull(hdrs)
	case 2:
		return v.reconcilePair(hdrs, alive)
	}

	// One readable header cannot witness a majority.
	return StateFailed, noDrive, 0
}

// All three headers were readable.
func (v *Volume) reconcileFull(hdrs [3]header) (State, int, uint32) {
	if hdrs[0].gen == hdrs[1].gen && hdrs[1].gen == hdrs[2].gen {
		if hdrs[0].failed != hdrs[1].failed || hdrs[1].failed != hdrs[2].failed {
			return StateFailed, noDrive, 0
		}
		if hdrs[0].failed == noDrive {
			return StateOK, noDrive, hdrs[0].gen
		}
		if !v.driveIndexOK(hdrs[0].failed) {
			return StateFailed, noDrive, 0
		}

		return StateDegraded, hdrs[0].failed, hdrs[0].gen
	}

	// Exactly two generations agreeing form a majority, but only if both
	// name the outlier as the failed drive: the outlier then simply missed
	// the last clean stop. Anything else implies a second loss.
	for a := 0; a < 3; a++ {
		for b := a + 1; b < 3; b++ {
			if hdrs[a].gen != hdrs[b].gen {
				continue
			}
			outlier := 3 - a - b
			if hdrs[a].failed == outlier && hdrs[b].failed == outlier {
				return StateDegraded, outlier, hdrs[a].gen
			}

			return StateFailed, noDrive, 0
		}
	}

	// Three distinct generations.
	return StateFailed, noDrive, 0
}

// Two headers were readable, the third drive failed the read itself.
func (v *Volume) reconcilePair(hdrs [3]header, alive [3]bool) (State, int, uint32) {
	unread := 0
	var pair []header
	for d := 0; d < 3; d++ {
		if alive[d] {
			pair = append(pair, hdrs[d])
		} else {
			unread = d
		}
	}

	if pair[0].gen != pair[1].gen || pair[0].failed != pair[1].failed {
		return StateFailed, noDrive, 0
	}

	// The pair agreeing that nothing was failed, or that exactly the
	// unreadable drive was, leaves a single loss. A different named drive
	// makes it two.
	if pair[0].failed == noDrive || pair[0].failed == unread {
		return StateDegraded, unread, pair[0].gen
	}

	return StateFailed, noDrive, 0
}

// persistHeaders writes the current header to every live drive. A write
// failure on a previously healthy drive degrades the volume and restarts the
// loop with the updated payload; a failure while already degraded means a
// second loss and persistence is abandoned.
func (v *Volume) persistHeaders() {
	for retry := true; retry; {
		retry = false
		for d := 0; d < v.dev.Devices; d++ {
			if v.state == StateDegraded && d == v.failed {
				continue
			}
			if v.writeHeader(d, header{failed: v.failed, gen: v.gen}) {
				continue
			}
			if v.state == StateOK {
				v.degrade(d)
				retry = true
				break
			}
			v.fail(d)
			return
		}
	}
}

func (v *Volume) driveIndexOK(drive int) bool {
	return drive >= 0 && drive < v.dev.Devices
}
