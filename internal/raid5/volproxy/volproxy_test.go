// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package volproxy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/raid5/internal/raid5"
	"github.com/asch/raid5/internal/raid5/blkdev"
	"github.com/asch/raid5/internal/raid5/blkdev/memdisk"
)

func newProxy(t *testing.T, devices, sectors int) (*Proxy, *memdisk.MemDisk) {
	t.Helper()

	md := memdisk.New(devices, sectors)
	dev := blkdev.Device{Devices: devices, Sectors: sectors, Ops: md}
	require.True(t, raid5.Create(dev))

	v := raid5.New()
	require.Equal(t, raid5.StateOK, v.Start(dev))

	return New(v), md
}

func sector(seed byte) []byte {
	buf := make([]byte, blkdev.SectorSize)
	for i := range buf {
		buf[i] = seed + byte(i)
	}

	return buf
}

func TestProxyRoundTrip(t *testing.T) {
	p, _ := newProxy(t, 3, 6)

	data := sector(0x42)
	require.True(t, p.Write(0, data, 1))

	out := make([]byte, blkdev.SectorSize)
	require.True(t, p.Read(0, out, 1))
	assert.Equal(t, data, out)
	assert.Equal(t, raid5.StateOK, p.Status())
}

func TestProxySerializesConcurrentClients(t *testing.T) {
	p, _ := newProxy(t, 4, 16)
	size := p.Instance.Size()

	// Hammer the volume from many goroutines, each owning disjoint
	// sectors. The proxy worker is the only goroutine ever touching the
	// volume, so this must be race free and every sector must read back.
	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for l := c; l < size; l += 8 {
				data := sector(byte(l))
				if !p.Write(l, data, 1) {
					t.Errorf("write of sector %d failed", l)
					return
				}
				out := make([]byte, blkdev.SectorSize)
				if !p.Read(l, out, 1) {
					t.Errorf("read of sector %d failed", l)
					return
				}
			}
		}(c)
	}
	wg.Wait()

	for l := 0; l < size; l++ {
		out := make([]byte, blkdev.SectorSize)
		require.True(t, p.Read(l, out, 1))
		require.Equal(t, sector(byte(l)), out, "sector %d", l)
	}
}

func TestProxyControlPath(t *testing.T) {
	p, md := newProxy(t, 3, 6)

	data := sector(0x17)
	require.True(t, p.Write(0, data, 1))

	md.FailDrive(1)
	out := make([]byte, blkdev.SectorSize)
	require.True(t, p.Read(0, out, 1))
	assert.Equal(t, raid5.StateDegraded, p.Status())

	md.RepairDrive(1)
	assert.Equal(t, raid5.StateOK, p.Resync())
	assert.Equal(t, raid5.StateStopped, p.Stop())
}
