package browser

import (
	"os/exec"
	"path/filepath"
)

// Common Chrome/Chromium binary names across different systems
var chromeBinaryNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// FindChromePath searches PATH and well-known install locations for a
// Chrome/Chromium binary. It returns an empty string when none is found, in
// which case chromedp falls back to its own lookup.
func FindChromePath() string {
	for _, name := range chromeBinaryNames {
		path, err := lookPath(name)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		log().Debug("found Chrome binary", "name", name, "path", path)
		return path
	}
	log().Warn("no Chrome binary found, relying on chromedp defaults")
	return ""
}
