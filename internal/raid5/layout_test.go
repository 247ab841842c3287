// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/raid5/internal/raid5/blkdev"
)

func TestLocateBounds(t *testing.T) {
	const sectors = 10
	rows := sectors - 1

	for devices := blkdev.MinDrives; devices <= blkdev.MaxDrives; devices++ {
		size := (devices - 1) * rows
		for l := 0; l < size; l++ {
			d, s, p := locate(l, devices)
			assert.NotEqual(t, d, p, "logical %d on %d drives", l, devices)
			assert.GreaterOrEqual(t, d, 0)
			assert.Less(t, d, devices)
			assert.GreaterOrEqual(t, s, 0)
			assert.Less(t, s, rows)
			assert.Equal(t, s%devices, p)
		}
	}
}

func TestLocateBijection(t *testing.T) {
	const rows = 9

	for devices := blkdev.MinDrives; devices <= blkdev.MaxDrives; devices++ {
		t.Run(fmt.Sprintf("devices=%d", devices), func(t *testing.T) {
			size := (devices - 1) * rows
			seen := make(map[[2]int]bool)

			for l := 0; l < size; l++ {
				d, s, _ := locate(l, devices)
				cell := [2]int{d, s}
				require.False(t, seen[cell], "cell (%d,%d) mapped twice", d, s)
				seen[cell] = true
			}

			// Every non-parity cell must be covered.
			require.Len(t, seen, size)
			for s := 0; s < rows; s++ {
				for d := 0; d < devices; d++ {
					if d == parityDrive(s, devices) {
						require.False(t, seen[[2]int{d, s}], "parity cell (%d,%d) mapped", d, s)
					} else {
						require.True(t, seen[[2]int{d, s}], "data cell (%d,%d) unmapped", d, s)
					}
				}
			}
		})
	}
}

func TestLocateParityRotates(t *testing.T) {
	// Left-symmetric rotation: row s puts parity on drive s mod D.
	for s := 0; s < 8; s++ {
		assert.Equal(t, s%4, parityDrive(s, 4))
	}
}

func TestMinimumVolumeSize(t *testing.T) {
	// Three drives with two sectors each leave one data row of two
	// logical sectors.
	devices, sectors := 3, 2
	assert.Equal(t, 2, (devices-1)*(sectors-1))
}
