// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Memdisk package keeps the whole drive array in memory. It is the backend
// for tests and benchmarks since it costs nothing to set up and supports
// failure injection per drive. It can also serve as a template for new
// backend implementations since it is a full implementation of the
// SectorReadWriter interface.
package memdisk

import (
	"github.com/asch/raid5/internal/raid5/blkdev"
)

// MemDisk is an in-memory drive array. A drive marked as failed refuses every
// transfer until it is repaired, which is how tests simulate a dead drive. The backing memory of a failed drive is kept, so a
// repaired drive comes back with stale content, exactly like a physically
// reconnected disk.
type MemDisk struct {
	drives  [][]byte
	failed  []bool
	sectors int
}

// Returns a zero-filled in-memory array of devices drives with sectors
// sectors each.
func New(devices, sectors int) *MemDisk {
	drives := make([][]byte, devices)
	for i := range drives {
		drives[i] = make([]byte, sectors*blkdev.SectorSize)
	}

	return &MemDisk{
		drives:  drives,
		failed:  make([]bool, devices),
		sectors: sectors,
	}
}

// Read transfers cnt sectors from the drive into buf. It returns the number
// of sectors transferred, which is lower than cnt when the drive is failed or
// the range leaves the drive.
func (m *MemDisk) Read(drive, sector int, buf []byte, cnt int) int {
	for i := 0; i < cnt; i++ {
		src, ok := m.sector(drive, sector+i)
		if !ok {
			return i
		}
		copy(buf[i*blkdev.SectorSize:(i+1)*blkdev.SectorSize], src)
	}

	return cnt
}

// Write transfers cnt sectors from buf onto the drive. Same contract as Read.
func (m *MemDisk) Write(drive, sector int, buf []byte, cnt int) int {
	for i := 0; i < cnt; i++ {
		dst, ok := m.sector(drive, sector+i)
		if !ok {
			return i
		}
		copy(dst, buf[i*blkdev.SectorSize:(i+1)*blkdev.SectorSize])
	}

	return cnt
}

// FailDrive makes every following transfer on the drive fail.
func (m *MemDisk) FailDrive(drive int) {
	m.failed[drive] = true
}

// RepairDrive makes the drive accept transfers again. Its content is whatever
// it held when it failed.
func (m *MemDisk) RepairDrive(drive int) {
	m.failed[drive] = false
}

// Sector exposes the backing memory of one sector. Intended for tests which
// need to corrupt or inspect raw drive content without going through the
// transfer path.
func (m *MemDisk) Sector(drive, sector int) []byte {
	return m.drives[drive][sector*blkdev.SectorSize : (sector+1)*blkdev.SectorSize]
}

func (m *MemDisk) sector(drive, sector int) ([]byte, bool) {
	if drive < 0 || drive >= len(m.drives) || m.failed[drive] {
		return nil, false
	}
	if sector < 0 || sector >= m.sectors {
		return nil, false
	}

	return m.Sector(drive, sector), true
}
