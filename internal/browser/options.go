package browser

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/skjsjhb/LCAP/internal/config"
)

// offscreen is where a hidden window is parked. Chrome has no real hidden
// state for a headed window, so it is moved out of view instead.
const offscreen = -32000

// launchFlags assembles the Chrome command line flags. Later entries in
// cfg.Args override the built in ones.
func launchFlags(cfg config.BrowserConfig, opts LaunchOptions, goos string) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                       false,
		"enable-automation":              false,
		"disable-blink-features":         "AutomationControlled",
		"disable-extensions":             true,
		"disable-default-apps":           true,
		"disable-sync":                   true,
		"no-first-run":                   true,
		"no-default-browser-check":       true,
		"hide-crash-restore-bubble":      true,
		"disable-session-crashed-bubble": true,
		"window-size":                    fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight),
	}

	if opts.Title != "" {
		flags["window-name"] = opts.Title
	}
	if opts.StartHidden {
		flags["window-position"] = fmt.Sprintf("%d,%d", offscreen, offscreen)
	}

	if cfg.NoSandbox {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	if goos == "linux" {
		flags["disable-dev-shm-usage"] = true
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(arg, "=")
		name = strings.TrimLeft(name, "-")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions converts the browser config and launch options into
// chromedp exec allocator options.
func AllocatorOptions(cfg config.BrowserConfig, opts LaunchOptions) []chromedp.ExecAllocatorOption {
	flags := launchFlags(cfg, opts, runtime.GOOS)

	// Stable order keeps the command line reproducible in logs.
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]chromedp.ExecAllocatorOption, 0, len(names)+2)
	for _, name := range names {
		out = append(out, chromedp.Flag(name, flags[name]))
	}
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	if cfg.ExecPath != "" {
		out = append(out, chromedp.ExecPath(cfg.ExecPath))
	}
	return out
}

// Geometry is a window rectangle in screen pixels.
type Geometry struct {
	Left, Top, Width, Height int64
}

// WindowGeometry centers a window covering scale of the screen in each
// dimension. When the screen size is unknown it falls back to the configured
// fixed size at the origin.
func WindowGeometry(screenWidth, screenHeight int64, cfg config.BrowserConfig) Geometry {
	if screenWidth <= 0 || screenHeight <= 0 {
		return Geometry{Width: int64(cfg.WindowWidth), Height: int64(cfg.WindowHeight)}
	}
	w := int64(float64(screenWidth) * cfg.WindowScale)
	h := int64(float64(screenHeight) * cfg.WindowScale)
	return Geometry{
		Left:   (screenWidth - w) / 2,
		Top:    (screenHeight - h) / 2,
		Width:  w,
		Height: h,
	}
}
