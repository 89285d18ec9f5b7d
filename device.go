package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"klaxon/audio"
)

// findDevice resolves a -device flag value by case-insensitive substring
// match against the capture device names.
func findDevice(ctx audio.Context, name string) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	needle := strings.ToLower(name)
	for i, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q (have %d devices, try -setup)", name, len(devices))
}

// selectDevice shows an arrow-key picker. The first entry is the system
// default, returned as nil so the backend resolves it at open time; that
// way the alarm follows the OS default if it changes between sessions.
func selectDevice(ctx audio.Context) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	names := make([]string, 0, len(devices)+1)
	names = append(names, "system default")
	for _, d := range devices {
		label := d.Name
		if audio.IsBluetooth(d.Name) {
			label += " (BT: levels may be skewed)"
		}
		names = append(names, label)
	}

	if len(devices) == 0 {
		fmt.Println("No capture devices listed; using system default")
		return nil, nil
	}

	// Raw mode for arrow key input
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderList := func() {
		fmt.Print("\r\x1b[J") // clear from cursor to end
		fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
		for i, name := range names {
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", name)
			} else {
				fmt.Printf("    %s\r\n", name)
			}
		}
	}

	// Initial render
	renderList()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		if n == 1 {
			switch buf[0] {
			case 13: // Enter
				fmt.Printf("\r\n")
				term.Restore(fd, oldState)
				if cursor == 0 {
					return nil, nil
				}
				return &devices[cursor-1], nil
			case 3: // Ctrl+C
				fmt.Printf("\r\n")
				term.Restore(fd, oldState)
				os.Exit(0)
			case 'j': // vim down
				if cursor < len(names)-1 {
					cursor++
				}
			case 'k': // vim up
				if cursor > 0 {
					cursor--
				}
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A': // Up arrow
				if cursor > 0 {
					cursor--
				}
			case 'B': // Down arrow
				if cursor < len(names)-1 {
					cursor++
				}
			}
		}

		// Redraw: move up to overwrite
		lines := len(names) + 2
		fmt.Printf("\x1b[%dA", lines)
		renderList()
	}
}
