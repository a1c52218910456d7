package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/looprec/internal/audio"
)

// Storage answers metadata queries about recordings on a filesystem
type Storage struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// NewOS returns a Storage on the host filesystem
func NewOS() *Storage {
	return New(afero.NewOsFs())
}

// Info reports whether uri exists and its size. WAV headers are decoded to add
// duration, sample rate and channel count.
func (s *Storage) Info(uri string) (audio.FileInfo, error) {
	info := audio.FileInfo{URI: uri}

	stat, err := s.fs.Stat(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return info, errors.Wrapf(err, "failed to stat %s", uri)
	}
	if stat.IsDir() {
		return info, errors.Newf("%s is a directory", uri)
	}

	info.Exists = true
	info.Size = stat.Size()

	if strings.EqualFold(filepath.Ext(uri), ".wav") {
		if err := s.readWAV(uri, &info); err != nil {
			return info, err
		}
	}
	return info, nil
}

func (s *Storage) readWAV(uri string, info *audio.FileInfo) error {
	f, err := s.fs.Open(uri)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", uri)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return errors.Newf("%s is not a valid WAV file", uri)
	}

	info.SampleRate = int(d.SampleRate)
	info.Channels = int(d.NumChans)

	if err := d.FwdToPCM(); err != nil {
		return errors.Wrapf(err, "failed to find PCM data in %s", uri)
	}
	bytesPerSec := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth) / 8
	info.Duration = pcmDuration(d.PCMLen(), bytesPerSec)
	return nil
}

// pcmDuration splits whole seconds from the remainder so large files do not
// overflow
func pcmDuration(pcmLen, bytesPerSec int64) time.Duration {
	if bytesPerSec <= 0 {
		return 0
	}
	secs := pcmLen / bytesPerSec
	rem := pcmLen % bytesPerSec
	return time.Duration(secs)*time.Second + time.Duration(rem*int64(time.Second)/bytesPerSec)
}
