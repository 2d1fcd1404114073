//go:build !linux

package conn

func setFwmark(fd, fwmark int) error {
	return nil
}
