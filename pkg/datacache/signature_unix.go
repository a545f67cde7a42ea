//go:build linux || darwin

package datacache

import (
	"golang.org/x/sys/unix"
)

// statSignature reads the signature straight from stat(2) so the device and
// inode numbers are available.
func statSignature(path string) (Signature, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Signature{}, err
	}
	return Signature{
		ModTimeSec:  int64(st.Mtim.Sec),
		ModTimeNsec: int64(st.Mtim.Nsec),
		Size:        st.Size,
		Device:      uint64(st.Dev),
		Inode:       st.Ino,
	}, nil
}
