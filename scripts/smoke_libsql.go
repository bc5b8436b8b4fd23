//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/policypilot/policypilot/pilot/chain/adapters"
	ports "github.com/policypilot/policypilot/pilot/chain/ports"
	"github.com/policypilot/policypilot/pilot/config"
	"github.com/policypilot/policypilot/pilot/db"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeLibSQL verifies the embedded libSQL persistence path end to end:
// connect, migrate, write and read a turn, write and read profile fields.
func RunSmokeLibSQL() {
	fmt.Println("Smoke test: LibSQL persistence")
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	ctx := context.Background()
	conn, err := db.Connect(ctx, config.DatabaseConfig{URL: "file:" + tmp})
	must(err, "connect")
	defer conn.Close()

	must(db.Migrate(ctx, conn), "migrate")
	fmt.Println("OK: migrations applied")

	history := adapters.NewLibSQLHistoryStore(conn)
	turn := ports.Turn{
		ID:        "smoke-turn-1",
		UserID:    "smoke-user",
		Question:  "What is the income threshold?",
		Answer:    "The threshold is 2.5 lakh per annum.",
		Sources:   []string{"policy.pdf"},
		Succeeded: true,
		CreatedAt: time.Now().UTC(),
	}
	must(history.Append(ctx, "smoke-user", turn), "append turn")

	window, err := history.RecentWindow(ctx, "smoke-user", 10)
	must(err, "read window")
	if len(window) != 1 || window[0].Question != turn.Question {
		log.Fatalf("window mismatch: %+v", window)
	}
	fmt.Println("OK: history round trip")

	stats, err := history.UserStats(ctx, "smoke-user")
	must(err, "read stats")
	if stats.TotalTurns != 1 || stats.SuccessfulTurns != 1 {
		log.Fatalf("stats mismatch: %+v", stats)
	}
	fmt.Println("OK: history stats")

	profile := adapters.NewLibSQLProfileStore(conn)
	must(profile.UpsertFields(ctx, "smoke-user", map[string]string{"name": "Asha", "location": "Kerala"}), "upsert profile")

	attrs, err := profile.Attributes(ctx, "smoke-user")
	must(err, "read profile")
	if attrs["name"] != "Asha" || attrs["location"] != "Kerala" {
		log.Fatalf("profile mismatch: %+v", attrs)
	}
	fmt.Println("OK: profile round trip")

	fmt.Println("Smoke checks completed.")
}
