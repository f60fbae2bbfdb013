package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"sflowd/pkg/config"
)

const defaultConfigTemplate = `[agent]
  sub_id           = 0
  agent_ip         = "127.0.0.1"
  agent_interface  = ""
  sampling_rate    = 400
  polling_interval = 30
  header_len       = 128
  datagram_size    = 1400
  collectors       = ["127.0.0.1:6343"]
  enable_on_start  = true
  flush_interval   = "1s"
  tos              = 0
  rpc_socket       = "/run/sflowd/sflowd.sock"
  db_path          = "/var/lib/sflowd/asic.db"
  metrics_addr     = ""
  log_level        = "info"

[hardware]
  ports    = []
  capture  = false
  snap_len = 256

[collect]
  listen = ":6343"
`

// EditConfig opens the configuration file in the system editor, creating it
// from a template first if needed. The edited file is validated afterwards.
func EditConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Creating new config file at %s...\n", path)
		if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	editor, err := findEditor()
	if err != nil {
		return err
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", editor, err)
	}

	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("edited config is invalid, the agent will refuse to start: %w", err)
	}
	fmt.Println("Config OK. Restart the agent to apply changes.")
	return nil
}

func findEditor() (string, error) {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor, nil
	}
	for _, e := range []string{"vi", "nano", "vim"} {
		if _, err := exec.LookPath(e); err == nil {
			return e, nil
		}
	}
	return "", errors.New("no editor found ($EDITOR not set, and vi/nano/vim not in PATH)")
}
