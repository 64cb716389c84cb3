package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"voiceask/internal/health"
	"voiceask/internal/types"
)

func main() {
	_ = godotenv.Load()

	base := flag.String("url", envOr("SMOKE_URL", "http://localhost:3000"), "Server base URL")
	text := flag.String("text", "What are your opening hours?", "Question to send to /ask")
	userID := flag.String("user", "smoke-"+uuid.NewString()[:8], "user_id sent with the question")
	skipToken := flag.Bool("skip-token", false, "Do not call /token")
	timeout := flag.Duration("timeout", 3*time.Minute, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	client := &http.Client{}
	root := strings.TrimRight(*base, "/")
	failed := false

	fmt.Printf("=== Smoke Test ===\n")
	fmt.Printf("Server: %s\n", root)
	fmt.Printf("User: %s\n", *userID)
	fmt.Printf("Text: %q\n\n", *text)

	// Step 1: readiness
	fmt.Println("[1] GET /readyz")
	if code, body, err := do(ctx, client, http.MethodGet, root+"/readyz", nil); err != nil {
		log.Fatalf("readyz: %v", err)
	} else {
		var st health.HealthStatus
		if err := json.Unmarshal(body, &st); err != nil {
			fmt.Printf("    %d %s\n", code, compact(body))
		} else {
			fmt.Printf("    %d %s", code, st)
		}
		failed = failed || code != http.StatusOK
	}

	// Step 2: ask
	fmt.Println("[2] POST /ask")
	payload, _ := json.Marshal(types.AskRequest{Text: *text, UserID: *userID})
	start := time.Now()
	code, body, err := do(ctx, client, http.MethodPost, root+"/ask", payload)
	if err != nil {
		log.Fatalf("ask: %v", err)
	}
	if code != http.StatusOK {
		fmt.Printf("    %d %s\n", code, compact(body))
		failed = true
	} else {
		var out types.AskResponse
		if err := json.Unmarshal(body, &out); err != nil {
			log.Fatalf("decode ask response: %v", err)
		}
		audio := "none"
		if out.Audio != nil {
			audio = fmt.Sprintf("%d bytes (data URI)", len(*out.Audio))
		}
		fmt.Printf("    %d in %s\n    text: %q\n    audio: %s\n", code, time.Since(start).Round(time.Millisecond), out.Text, audio)
	}

	// Step 3: realtime token
	if !*skipToken {
		fmt.Println("[3] GET /token")
		code, body, err := do(ctx, client, http.MethodGet, root+"/token", nil)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		if code != http.StatusOK {
			fmt.Printf("    %d %s\n", code, compact(body))
			failed = true
		} else {
			var out types.TokenResponse
			_ = json.Unmarshal(body, &out)
			fmt.Printf("    %d token=%s… expires_in=%ds\n", code, prefix(out.Token, 6), out.ExpiresIn)
		}
	}

	if failed {
		fmt.Println("\n[*] FAIL")
		os.Exit(1)
	}
	fmt.Println("\n[*] OK")
}

func do(ctx context.Context, c *http.Client, method, url string, body []byte) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func compact(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		return s[:300] + "…"
	}
	return s
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
