// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Filedisk package backs every drive of the array with one regular file. It
// is the default backend of the daemon: cheap, persistent across restarts and
// trivially inspectable with standard tools.
package filedisk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/asch/raid5/internal/raid5/blkdev"
)

const (
	// Format string for the per-drive backing file name.
	fileFmt = "drive%02d.img"
)

// FileDisk is a drive array where drive i lives in dir/drive%02d.img. All
// transfers go through ReadAt/WriteAt so there is no shared file offset.
type FileDisk struct {
	files   []*os.File
	sectors int
}

// Returns a file-backed array of devices drives with sectors sectors each.
// Backing files are created and extended to full size when missing, existing
// content is kept so a restarted daemon sees its previous data.
func New(dir string, devices, sectors int) (*FileDisk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f := &FileDisk{
		files:   make([]*os.File, devices),
		sectors: sectors,
	}

	size := int64(sectors) * blkdev.SectorSize
	for i := 0; i < devices; i++ {
		path := filepath.Join(dir, fmt.Sprintf(fileFmt, i))
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := file.Truncate(size); err != nil {
			file.Close()
			f.Close()
			return nil, err
		}
		f.files[i] = file
	}

	return f, nil
}

// Read transfers cnt sectors from the backing file into buf and returns the
// number of sectors transferred.
func (f *FileDisk) Read(drive, sector int, buf []byte, cnt int) int {
	if !f.rangeOK(drive, sector, cnt) {
		return 0
	}

	n, err := f.files[drive].ReadAt(buf[:cnt*blkdev.SectorSize], int64(sector)*blkdev.SectorSize)
	if err != nil {
		log.Warn().Err(err).Int("drive", drive).Int("sector", sector).Msg("drive read failed")
	}

	return n / blkdev.SectorSize
}

// Write transfers cnt sectors from buf into the backing file and returns the
// number of sectors transferred.
func (f *FileDisk) Write(drive, sector int, buf []byte, cnt int) int {
	if !f.rangeOK(drive, sector, cnt) {
		return 0
	}

	n, err := f.files[drive].WriteAt(buf[:cnt*blkdev.SectorSize], int64(sector)*blkdev.SectorSize)
	if err != nil {
		log.Warn().Err(err).Int("drive", drive).Int("sector", sector).Msg("drive write failed")
	}

	return n / blkdev.SectorSize
}

// Close releases all backing files. The array must not be used afterwards.
func (f *FileDisk) Close() error {
	var firstErr error
	for _, file := range f.files {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (f *FileDisk) rangeOK(drive, sector, cnt int) bool {
	if drive < 0 || drive >= len(f.files) || f.files[drive] == nil {
		return false
	}

	return sector >= 0 && cnt >= 0 && sector+cnt <= f.sectors
}
