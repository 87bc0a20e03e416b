//go:build windows

package aria2

import "syscall"

const detachedProcess = 0x00000008

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
	}
}

func platformArgs() []string {
	return nil
}
