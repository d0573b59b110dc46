package hermes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wzshiming/ctc"
)

type templateFile struct {
	filename string
	content  string
}

func (h *Hermes) buildInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "init",
		Short:         "Initialize a new Hermes project with an example config",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.runInit()
		},
	}
}

func (h *Hermes) runInit() error {
	files := []templateFile{
		{filename: "hermes.yaml", content: configTemplate},
	}

	// Compute max filename length for aligned output
	maxLen := 0
	for _, f := range files {
		if len(f.filename) > maxLen {
			maxLen = len(f.filename)
		}
	}

	for _, f := range files {
		padding := strings.Repeat(" ", maxLen-len(f.filename))

		if _, err := os.Stat(f.filename); err == nil {
			fmt.Fprintf(h.stdout, "  %s%s   ..%sskipped%s\n", f.filename, padding, ctc.ForegroundYellow, ctc.Reset)
			continue
		}

		if dir := filepath.Dir(f.filename); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(h.stdout, "  %s%s   ..%sfailed%s (%s)\n", f.filename, padding, ctc.ForegroundRed, ctc.Reset, err)
				continue
			}
		}

		if err := os.WriteFile(f.filename, []byte(f.content), 0644); err != nil {
			fmt.Fprintf(h.stdout, "  %s%s   ..%sfailed%s (%s)\n", f.filename, padding, ctc.ForegroundRed, ctc.Reset, err)
			continue
		}

		fmt.Fprintf(h.stdout, "  %s%s   ..%screated%s\n", f.filename, padding, ctc.ForegroundGreen, ctc.Reset)
	}

	return nil
}

var configTemplate = `# Hermes config
#
# server describes the Eureka server to talk to, instance describes the
# service this process registers as.

server:
  host: localhost
  port: 8761
  service_path: /eureka
  heartbeat_interval: 30s
  registry_fetch_interval: 30s
  max_retries: 3
  retry_delay: 500ms
  # dns:
  #   domain: eureka.example.com
  #   port: 8761

instance:
  app: my-service
  host_name: localhost
  ip_addr: 127.0.0.1
  port:
    value: 8080
    enabled: true
  secure_port:
    value: 443
    enabled: false
  home_page_url: http://localhost:8080/
  status_page_url: http://localhost:8080/info
  health_check_url: http://localhost:8080/health
  metadata:
    zone: local
`
