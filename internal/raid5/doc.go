// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// raid5 implements a software RAID-5 volume on top of an array of
// independent sector addressable drives. The drives are reached through the
// blkdev.SectorReadWriter interface, so the same volume code runs against
// memory, files or an object store.
//
// The volume exposes a single logical sector array which survives the loss of
// any one drive. Data and rotating parity are laid out left-symmetric, the
// last sector of every drive holds a small header (failed drive, generation
// counter) used to reconcile the array state on start by a three way quorum.
// A lost drive degrades the volume but keeps all logical I/O working through
// parity reconstruction; Resync rebuilds a replaced drive row by row and
// returns the volume to full redundancy.
package raid5
