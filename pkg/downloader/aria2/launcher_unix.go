//go:build !windows

package aria2

import "syscall"

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// aria2c forks into the background itself and the launched parent exits.
func platformArgs() []string {
	return []string{"--daemon=true"}
}
