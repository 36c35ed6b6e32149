package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/pumpscan/client"
	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the server is up and its database is reachable",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			cl := client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, cliLogger(c))
			err := cl.Health(c.Context)

			var se *client.StatusError
			if errors.As(err, &se) {
				return fmt.Errorf("server returned unhealthy status: %d (%s)", se.StatusCode, strings.TrimSpace(se.Message))
			}
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"server": serverURL, "status": "ok"})
			}
			fmt.Fprintf(c.App.Writer, "✓ Server is healthy\n")
			fmt.Fprintf(c.App.Writer, "  URL: %s\n", serverURL)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			}
			fmt.Fprintf(c.App.Writer, "pumpscan CLI %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
