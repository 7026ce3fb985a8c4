package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

const banner = `
  ____            _             _ _ _
 |  _ \ ___  _ __| |_ ___ _   _| | (_)___
 | |_) / _ \| '__| __/ __| | | | | | / __|
 |  __/ (_) | |  | || (__| |_| | | | \__ \
 |_|   \___/|_|   \__\___|\__,_|_|_|_|___/
`

func printBanner(w io.Writer, role string) {
	fmt.Fprint(w, color.BlueString("%s", banner))
	fmt.Fprintf(w, "%s\n\n", color.GreenString("  Signed-session admin gate (%s) - Version %s", role, Version))
}
