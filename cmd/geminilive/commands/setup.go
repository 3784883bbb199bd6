package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/geminilive/pkg/cli"
	"github.com/haivivi/geminilive/pkg/geminilive"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Print the setup frame for a session config (dry run)",
	Long: `Load a session config and print the setup frame a session would send,
without connecting. The model name is qualified for the context's platform.

Examples:
  geminilive setup -f session.yaml
  cat session.json | geminilive setup -f -
  geminilive -c vertex setup -f session.yaml --tools`,
	RunE: runSetup,
}

var (
	setupFile   string
	setupTools  bool
	setupHandle string
)

func init() {
	setupCmd.Flags().StringVarP(&setupFile, "file", "f", "", "session config file (YAML or JSON, - for stdin)")
	setupCmd.Flags().BoolVar(&setupTools, "tools", false, "declare the built-in get_time tool")
	setupCmd.Flags().StringVar(&setupHandle, "resume", "", "session resumption handle")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cctx, err := getContext()
	if err != nil {
		// Platform defaults are enough for a dry run.
		cctx = &cli.Context{Name: "default"}
	}
	cfg, err := sessionConfig(cctx, setupFile)
	if err != nil {
		return err
	}

	reg := geminilive.NewToolRegistry()
	if setupTools {
		if err := reg.Register(getTimeTool()); err != nil {
			return err
		}
	}

	setup := geminilive.NewSetup(cfg, platformFor(cctx), reg.Declarations(), setupHandle)
	frame, err := geminilive.Encode(&geminilive.OutboundMessage{Setup: setup})
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, frame, "", "  "); err != nil {
		return fmt.Errorf("format frame: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(os.Stdout)
	return err
}
