package main

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/urfave/cli"
)

// wireState mirrors internal/machine's machineState: same field names and
// types, so gob (which matches by name, not package) decodes it without
// needing to import internal/machine's unexported sub-state types.
type wireState struct {
	Bus []byte
	CPU []byte
}

const stateMagic = "GBSTATE1"

func main() {
	app := cli.NewApp()
	app.Name = "gbstate"
	app.Usage = "inspect a save-state file's framing and section sizes"
	app.UsageText = "gbstate [options] <save-state file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verify",
			Usage: "exit non-zero (after printing) if the file fails to decode",
		},
	}
	app.Action = inspect

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gbstate:", err)
		os.Exit(1)
	}
}

func inspect(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowAppHelp(c)
		return cli.NewExitError("no save-state file provided", 2)
	}
	path := c.Args().Get(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("read %s: %v", path, err), 1)
	}

	fmt.Printf("file:       %s\n", path)
	fmt.Printf("total size: %d bytes\n", len(data))

	if len(data) < len(stateMagic)+4 {
		return cli.NewExitError("truncated: smaller than the magic+version header", 1)
	}

	magic := string(data[:len(stateMagic)])
	fmt.Printf("magic:      %q\n", magic)
	if magic != stateMagic {
		return cli.NewExitError(fmt.Sprintf("bad magic, expected %q", stateMagic), 1)
	}

	off := len(stateMagic)
	version := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
	fmt.Printf("version:    %d\n", version)
	off += 4

	var s wireState
	if err := gob.NewDecoder(bytes.NewReader(data[off:])).Decode(&s); err != nil {
		return cli.NewExitError(fmt.Sprintf("decode body: %v", err), 1)
	}
	fmt.Printf("bus section: %d bytes\n", len(s.Bus))
	fmt.Printf("cpu section: %d bytes\n", len(s.CPU))
	return nil
}
