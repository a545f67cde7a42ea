//go:build !linux && !darwin

package datacache

import "os"

// statSignature falls back to os.Stat; device and inode stay zero.
func statSignature(path string) (Signature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Signature{}, err
	}
	mt := info.ModTime()
	return Signature{
		ModTimeSec:  mt.Unix(),
		ModTimeNsec: int64(mt.Nanosecond()),
		Size:        info.Size(),
	}, nil
}
