package cmdutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirm prints msg and asks the user to continue. Without a terminal on
// stdin nothing is asked and false is returned.
func Confirm(msg string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, nil
	}
	return confirm(os.Stdin, os.Stdout, msg)
}

func confirm(in io.Reader, out io.Writer, msg string) (bool, error) {
	if msg != "" {
		fmt.Fprintln(out, msg)
	}
	fmt.Fprint(out, "Continue? [y/N]: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("confirmation could not be read: %v", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
