package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/profilecrm/profilecrm/internal/core"
)

var colorEnabled = term.IsTerminal(int(os.Stdout.Fd()))

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func bold(s string) string   { return paint("1", s) }
func green(s string) string  { return paint("32", s) }
func yellow(s string) string { return paint("33", s) }
func red(s string) string    { return paint("31", s) }
func dim(s string) string    { return paint("2", s) }

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printContactLine(c *core.Contact) {
	name := c.DisplayName
	if name == "" {
		name = "-"
	}
	line := fmt.Sprintf("   @%-20s %-24s %-12s", c.Username, truncate(name, 24), c.PipelineStage)
	if len(c.Tags) > 0 {
		line += " " + dim("#"+strings.Join(c.Tags, " #"))
	}
	fmt.Println(line)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
