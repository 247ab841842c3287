// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/raid5/internal/raid5/blkdev"
	"github.com/asch/raid5/internal/raid5/blkdev/memdisk"
)

func TestHeaderCodec(t *testing.T) {
	buf := make([]byte, blkdev.SectorSize)
	for i := range buf {
		buf[i] = 0xee
	}

	encodeHeader(buf, header{failed: 5, gen: 42})
	assert.Equal(t, header{failed: 5, gen: 42}, decodeHeader(buf))

	// The rest of the sector is zeroed by the encoder.
	for _, b := range buf[headerSize:] {
		require.Zero(t, b)
	}

	encodeHeader(buf, header{failed: noDrive, gen: 0})
	assert.Equal(t, header{failed: noDrive, gen: 0}, decodeHeader(buf))
}

// corruptHeader rewrites one drive's header sector in place.
func corruptHeader(md *memdisk.MemDisk, drive, sectors int, h header) {
	encodeHeader(md.Sector(drive, sectors-1), h)
}

func TestStartHealthyQuorum(t *testing.T) {
	v, _, _ := newTestVolume(t, 4, 8)
	assert.Equal(t, StateOK, v.Status())
	assert.Equal(t, noDrive, v.failed)
}

func TestStartThreeDistinctGenerations(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	// Clean stop left generation 1 everywhere. Two corrupted headers
	// give three distinct generations, which no majority can resolve.
	corruptHeader(md, 0, 8, header{failed: noDrive, gen: 5})
	corruptHeader(md, 1, 8, header{failed: noDrive, gen: 9})

	assert.Equal(t, StateFailed, v.Start(dev))
}

func TestStartMajorityNamesOutlier(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	// Drives 0 and 1 agree on a newer generation naming drive 2 failed;
	// drive 2 is stuck one stop behind.
	corruptHeader(md, 0, 8, header{failed: 2, gen: 2})
	corruptHeader(md, 1, 8, header{failed: 2, gen: 2})
	corruptHeader(md, 3, 8, header{failed: 2, gen: 2})

	require.Equal(t, StateDegraded, v.Start(dev))
	assert.Equal(t, 2, v.failed)
}

func TestStartMajorityDisagreesOnFailedDrive(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	// Equal generations but contradicting failure records.
	corruptHeader(md, 0, 8, header{failed: 2, gen: 1})

	assert.Equal(t, StateFailed, v.Start(dev))
}

func TestStartOutlierNotNamedByMajority(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	// Drive 2's generation is stale but the majority blames drive 3:
	// two losses, unrecoverable.
	corruptHeader(md, 0, 8, header{failed: 3, gen: 2})
	corruptHeader(md, 1, 8, header{failed: 3, gen: 2})

	assert.Equal(t, StateFailed, v.Start(dev))
}

func TestStartUnreadableDriveCleanPair(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	// The pair agrees nothing was failed, so the unreadable drive is the
	// single loss.
	md.FailDrive(1)

	require.Equal(t, StateDegraded, v.Start(dev))
	assert.Equal(t, 1, v.failed)
}

func TestStartUnreadableDriveIsTheRecordedOne(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)

	// Degrade drive 2, stop, leave the drive dead. The surviving headers
	// name exactly the unreadable drive, still a single loss.
	data := pattern(1, 0x31)
	require.True(t, v.Write(0, data, 1))
	md.FailDrive(2)
	out := make([]byte, blkdev.SectorSize)
	onDead := -1
	for l := 0; l < v.Size(); l++ {
		if d, _, _ := locate(l, 4); d == 2 {
			onDead = l
			break
		}
	}
	require.True(t, v.Read(onDead, out, 1))
	require.Equal(t, StateDegraded, v.Status())
	require.Equal(t, StateStopped, v.Stop())

	require.Equal(t, StateDegraded, v.Start(dev))
	assert.Equal(t, 2, v.failed)
}

func TestStartUnreadableDrivePlusRecordedOther(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	// Headers name drive 3 as failed while drive 1 does not answer at
	// all: two losses.
	corruptHeader(md, 0, 8, header{failed: 3, gen: 1})
	corruptHeader(md, 2, 8, header{failed: 3, gen: 1})
	md.FailDrive(1)

	assert.Equal(t, StateFailed, v.Start(dev))
}

func TestStartPairGenerationMismatch(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	corruptHeader(md, 0, 8, header{failed: noDrive, gen: 7})
	md.FailDrive(2)

	assert.Equal(t, StateFailed, v.Start(dev))
}

func TestStartSingleReadableHeader(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)
	require.Equal(t, StateStopped, v.Stop())

	md.FailDrive(0)
	md.FailDrive(2)

	assert.Equal(t, StateFailed, v.Start(dev))
}

func TestStopHeaderFailurePromotesState(t *testing.T) {
	v, md, dev := newTestVolume(t, 4, 8)

	data := pattern(1, 0x21)
	require.True(t, v.Write(0, data, 1))

	// The first failure ever observed happens during the header write
	// loop of stop. The volume must record it and persist the degraded
	// state on the remaining drives.
	md.FailDrive(3)
	require.Equal(t, StateStopped, v.Stop())

	require.Equal(t, StateDegraded, v.Start(dev))
	assert.Equal(t, 3, v.failed)
	assert.Equal(t, uint32(1), v.Generation())
}
