package shared

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// OpenBrowser opens target with the system handler.
//
// target may be a URL or a local file (such as a saved QR validation image).
// Supports macOS, Linux, and Windows platforms.
func OpenBrowser(target string) error {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
	}

	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", target)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}

	return nil
}
