// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"
)

// Quick environment sanity check before starting the server or an
// agent: catches the misconfigurations that otherwise only show up as
// runtime 401s or an accidentally in-memory database.
func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	role := strings.TrimSpace(os.Getenv("PREFLIGHT_ROLE"))
	if role == "" {
		role = "server"
	}

	addr := strings.TrimSpace(os.Getenv("ADDR"))
	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	serverURL := strings.TrimSpace(os.Getenv("SERVER_URL"))
	apiKey := strings.TrimSpace(os.Getenv("API_KEY"))
	webhook := strings.TrimSpace(os.Getenv("SLACK_WEBHOOK"))

	switch role {
	case "server":
		if addr == "" {
			warn("ADDR is empty; the default :3000 will be used.")
		} else {
			ok("ADDR=" + addr)
		}
		if driver == "memory" {
			warn("DATABASE_DRIVER=memory — all history is lost on restart.")
		}
		if driver == "" && db == "" {
			warn("DATABASE_URL empty — a monitor.db file will be created in the working directory.")
		} else if db != "" {
			ok("DATABASE_URL present")
		}
		if driver == "postgres" && !strings.HasPrefix(db, "postgres://") && !strings.HasPrefix(db, "postgresql://") {
			fail("DATABASE_DRIVER=postgres but DATABASE_URL is not a postgres:// DSN.")
		}
		if webhook == "" {
			warn("SLACK_WEBHOOK empty — down/recovery alerts are disabled.")
		} else {
			ok("SLACK_WEBHOOK present")
		}
	case "agent":
		if serverURL == "" {
			fail("SERVER_URL is empty (the agent has nowhere to pull batches from).")
		}
		ok("SERVER_URL=" + serverURL)
		if apiKey == "" {
			fail("API_KEY is empty (every agent request will 401).")
		}
		if strings.Contains(apiKey, " ") {
			warn("API_KEY contains spaces; check for copy-paste artifacts.")
		}
		ok("API_KEY present")
	default:
		fail("PREFLIGHT_ROLE must be server or agent, got " + role)
	}

	ok("preflight passed")
}
