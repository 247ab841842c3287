// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package raid5

import (
	"github.com/rs/zerolog/log"

	"github.com/asch/raid5/internal/raid5/blkdev"
)

// State of the volume. The volume serves I/O only in StateOK and
// StateDegraded; StateFailed is terminal until the volume is stopped and
// started again.
type State int

const (
	// Not assembled, no drive binding held.
	StateStopped State = iota

	// Fully redundant operation.
	StateOK

	// One drive is unusable, I/O runs through parity reconstruction.
	StateDegraded

	// Two drives were lost, the array content can no longer be trusted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateOK:
		return "ok"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	}

	return "unknown"
}

const noDrive = -1

// Volume is one logical RAID-5 array. It owns at most one drive binding at a
// time, taken on Start and released on Stop. The zero value is not usable,
// use New. A Volume is not safe for concurrent use, callers serialize access
// themselves or go through the volproxy package.
type Volume struct {
	dev   blkdev.Device
	bound bool

	state  State
	failed int
	gen    uint32

	// Data rows per drive and precomputed logical capacity.
	rows int
	size int

	// Scratch sectors for the I/O engine, allocated on Start so the hot
	// path does not allocate.
	tmp    []byte
	dead   []byte
	parity []byte
}

// Returns a stopped volume.
func New() *Volume {
	return &Volume{
		state:  StateStopped,
		failed: noDrive,
	}
}

// Start binds the device, reconciles the drive headers and brings the volume
// to its operating state, which is returned. Starting an already started
// volume fails without touching the running binding.
func (v *Volume) Start(dev blkdev.Device) State {
	if v.bound || !dev.Valid() {
		return StateFailed
	}

	v.dev = dev
	v.bound = true
	v.rows = dev.Sectors - 1
	v.size = (dev.Devices - 1) * v.rows
	v.tmp = make([]byte, blkdev.SectorSize)
	v.dead = make([]byte, blkdev.SectorSize)
	v.parity = make([]byte, blkdev.SectorSize)

	v.state, v.failed, v.gen = v.reconcile()

	log.Info().
		Stringer("state", v.state).
		Int("failed", v.failed).
		Uint32("generation", v.gen).
		Int("size", v.size).
		Msg("volume started")

	return v.state
}

// Stop persists the headers with an incremented generation and releases the
// drive binding. A failed volume is released without persisting, its headers
// keep the previous generation. Stop always returns StateStopped.
func (v *Volume) Stop() State {
	if v.state == StateStopped {
		return StateStopped
	}

	if v.state != StateFailed {
		v.gen++
		v.persistHeaders()
	}

	log.Info().Uint32("generation", v.gen).Msg("volume stopped")
	v.release()

	return StateStopped
}

// Status returns the current state of the volume.
func (v *Volume) Status() State {
	return v.state
}

// Size returns the number of logical sectors the volume exposes.
func (v *Volume) Size() int {
	return v.size
}

// Generation returns the header generation the running volume was started
// with.
func (v *Volume) Generation() uint32 {
	return v.gen
}

// degrade records the first observed drive failure and switches the volume to
// degraded operation.
func (v *Volume) degrade(drive int) {
	v.state = StateDegraded
	v.failed = drive
	metricDriveFailures.WithLabelValues(driveLabel(drive)).Inc()
	log.Warn().Int("drive", drive).Msg("drive failed, volume degraded")
}

// fail records a second observed drive failure. The volume refuses all
// further I/O.
func (v *Volume) fail(drive int) {
	v.state = StateFailed
	v.failed = noDrive
	metricDriveFailures.WithLabelValues(driveLabel(drive)).Inc()
	log.Error().Int("drive", drive).Msg("second drive failed, volume failed")
}

// release drops the drive binding and scratch buffers and resets the volume
// to its pristine stopped state.
func (v *Volume) release() {
	v.dev = blkdev.Device{}
	v.bound = false
	v.state = StateStopped
	v.failed = noDrive
	v.gen = 0
	v.rows = 0
	v.size = 0
	v.tmp = nil
	v.dead = nil
	v.parity = nil
}
