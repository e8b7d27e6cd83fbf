// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"tools.zach/dev/tshell/internal/config"
)

// Title is the banner at the top of the generated file.
const Title = "tshell Configuration"

func main() {
	// go generate runs from internal/config; the root package embeds the file.
	out := flag.String("o", "../../config.default.toml", "output path")
	check := flag.Bool("check", false, "exit 1 if the output file is out of date instead of writing it")
	flag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
}

// run renders the example config and writes it to out, or with check set
// compares it against the existing file.
func run(out string, check bool) error {
	data, err := config.Annotate(config.ExampleConfig(), Title)
	if err != nil {
		return err
	}

	if check {
		existing, err := os.ReadFile(out)
		if err != nil {
			return fmt.Errorf("read %s: %w", out, err)
		}
		if !bytes.Equal(existing, data) {
			return fmt.Errorf("%s is out of date; run go generate ./internal/config", out)
		}
		return nil
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}
