package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/output"
)

var outputExtensions = map[output.Format]string{
	output.FormatJSON:     "json",
	output.FormatMarkdown: "md",
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-format", "o", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory")
}

// emit renders with the formatter the flags select and writes the result
// to stdout, --out, or a file in --out-dir named after name.
func emit(cmd *cobra.Command, name string, render func(output.Formatter) (string, error)) error {
	flags := cmd.Flags()
	rawFormat, _ := flags.GetString("output-format")
	format, err := output.ParseFormat(rawFormat)
	if err != nil {
		return err
	}

	outPath, _ := flags.GetString("out")
	outDir, _ := flags.GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)
	if outPath != "" && outDir != "" {
		return fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	if outDir != "" {
		ext, ok := outputExtensions[format]
		if !ok {
			ext = "txt"
		}
		outPath = filepath.Join(outDir, sanitizeFilename(name)+"."+ext)
	}

	rendered, err := render(output.NewFormatter(format))
	if err != nil {
		return err
	}

	w, closeSink, err := openSink(outPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(rendered, "\n")); err != nil {
		_ = closeSink()
		return err
	}
	return closeSink()
}

// openSink opens path for writing, creating parent directories. Empty or
// "-" selects stdout.
func openSink(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	// #nosec G301 -- output directories are user-chosen
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path) // #nosec G304 -- path comes from --out/--out-dir
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}
