package visualization

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// OpenBrowser shows target, a URL or a local HTML file, in the default browser.
func OpenBrowser(target string) error {
	name, args, err := browserCommand(runtime.GOOS, browserTarget(target))
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

// browserTarget turns a local file path into a file:// URL.
func browserTarget(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	return "file://" + filepath.ToSlash(abs)
}

func browserCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "xdg-open", []string{url}, nil
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "cmd", []string{"/c", "start", url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
