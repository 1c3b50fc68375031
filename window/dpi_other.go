//go:build !windows

package window

func setDPIAware() {}
