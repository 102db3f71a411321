package auth

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/pkg/browser"
)

// Opener launches a URL in the user's browser. Tests substitute a fake
// so interactive flows can run against a local identity stub.
type Opener interface {
	Open(url string) error
}

// SystemBrowser opens URLs with the operating system's default handler.
// When Profile is set, a Chrome profile directory is requested so users
// signing into several tenants land in the right identity.
type SystemBrowser struct {
	Profile string
}

// Open launches the URL without waiting for the browser to exit.
func (b *SystemBrowser) Open(url string) error {
	if b.Profile == "" {
		return browser.OpenURL(url)
	}

	// Profile launches bypass the OS default handler; only Chrome
	// exposes a profile switch on the command line.
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("google-chrome", "--profile-directory="+b.Profile, url)
	case "darwin":
		cmd = exec.Command("open", "-na", "Google Chrome", "--args", "--profile-directory="+b.Profile, url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "chrome", "--profile-directory="+b.Profile, url)
	default:
		return fmt.Errorf("unsupported platform for profile launch: %s", runtime.GOOS)
	}

	// Start without waiting; the flow continues when the loopback
	// server receives the redirect.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
