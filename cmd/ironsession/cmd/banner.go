package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ___                ____                _
 |_ _|_ __ ___  _ __/ ___|  ___  ___ ___(_) ___  _ __
  | || '__/ _ \| '_ \___ \ / _ \/ __/ __| |/ _ \| '_ \
  | || | | (_) | | | |__) |  __/\__ \__ \ | (_) | | | |
 |___|_|  \___/|_| |_|____/ \___||___/___/_|\___/|_| |_|
`

func printBanner(w io.Writer, subtitle string) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  %s - Version %s\x1b[0m\n\n", subtitle, Version)
}
