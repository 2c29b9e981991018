// internal/browser/allocator.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/seatwatch/internal/config"
)

// flag is one Chrome command line switch, without the leading dashes.
type flag struct {
	name  string
	value interface{}
}

// DefaultAllocatorOptions builds the exec allocator options for a locally
// launched Chrome. The browser is headed unless configured otherwise, since
// the user signs in and runs the first search by hand.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	return opts
}

// allocatorFlags lists the switches derived from cfg, in the order they are
// applied. Later switches override earlier ones with the same name.
func allocatorFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"headless", cfg.Headless},
		{"hide-scrollbars", cfg.Headless},
		{"mute-audio", cfg.Headless},
		{"disable-dev-shm-usage", true},
	}
	if cfg.DisableCache {
		flags = append(flags,
			flag{"disk-cache-size", "1"},
			flag{"media-cache-size", "1"},
			flag{"disable-cache", true},
		)
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			flag{"ignore-certificate-errors", true},
			flag{"allow-insecure-localhost", true},
		)
	}
	for _, arg := range cfg.Args {
		if f, ok := parseArg(arg); ok {
			flags = append(flags, f)
		}
	}
	return flags
}

// parseArg turns "--name" or "--name=value" into a flag.
func parseArg(arg string) (flag, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return flag{}, false
	}
	name, value, found := strings.Cut(arg, "=")
	if !found {
		return flag{name: name, value: true}, true
	}
	return flag{name: name, value: value}, true
}

func (f flag) String() string {
	if b, ok := f.value.(bool); ok && b {
		return "--" + f.name
	}
	return fmt.Sprintf("--%s=%v", f.name, f.value)
}
