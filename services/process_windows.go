//go:build windows

package services

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
