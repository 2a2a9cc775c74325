//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentforge/forge/db"
	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeTranscripts opens an embedded database, applies the migrations and
// round-trips a short conversation through the transcript store.
func RunSmokeTranscripts(dir string) {
	fmt.Println("Smoke test: transcript store on embedded libsql")
	ctx := context.Background()
	path := filepath.Join(dir, "smoke.db")
	defer os.Remove(path)

	conn, err := db.Open(ctx, path, zerolog.Nop())
	must(err, "open")
	defer conn.Close()
	fmt.Println("OK: open + migrations")

	// JSON1 backs the tool artifact payload column
	var jsonRes string
	must(conn.QueryRowContext(ctx, "SELECT json_extract('{\"test\":\"value\"}', '$.test')").Scan(&jsonRes), "JSON1 query")
	if jsonRes != "value" {
		log.Fatalf("JSON1 returned unexpected: %v", jsonRes)
	}
	fmt.Println("OK: JSON1")

	store := adapters.NewLibSQLConversationStore(conn)
	turns := []ports.Turn{
		{Ordinal: 0, Speaker: "user", Role: "system", Content: "build a todo app"},
		{Ordinal: 1, Speaker: "API_Architect", Role: "agent", Content: "Endpoints drafted."},
		{Ordinal: 2, Speaker: "save_artifact", Role: "tool-result", Content: "save_artifact: saved api/routes.py (1.2 kB)"},
	}
	for _, turn := range turns {
		turn.CreatedAt = time.Now().UTC()
		must(store.SaveTurn(ctx, "smoke-run", turn), "save turn")
	}
	loaded, err := store.LoadContext(ctx, "smoke-run", 2)
	must(err, "load context")
	if len(loaded) != 2 || loaded[0].Ordinal != 1 || loaded[1].Speaker != "save_artifact" {
		log.Fatalf("load context returned %+v", loaded)
	}
	fmt.Println("OK: transcript round-trip")

	must(store.AppendToolArtifact(ctx, "smoke-run", "save_artifact", []byte(`{"path":"api/routes.py"}`)), "append tool artifact")
	n, err := store.CountToolArtifacts(ctx, "smoke-run")
	must(err, "count tool artifacts")
	if n != 1 {
		log.Fatalf("tool artifact count %d, want 1", n)
	}
	fmt.Println("OK: tool artifacts")

	fmt.Println("Smoke checks completed.")
}
