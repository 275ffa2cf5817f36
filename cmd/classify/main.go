package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/chat-moderator/internal/app/bootstrap"
	appconfig "github.com/wolfman30/chat-moderator/internal/config"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// classify runs one message through the configured oracle and prints the
// verdict. Context lines are read from -context as "speaker: text".
func main() {
	cfg := appconfig.Load()

	provider := flag.String("provider", cfg.OracleProvider, "oracle provider (ollama, openai, anthropic, gemini, bedrock, stub)")
	model := flag.String("model", cfg.OracleModel, "model id")
	contextFile := flag.String("context", "", "file with prior turns, one \"speaker: text\" per line")
	speaker := flag.String("speaker", "", "speaker of the message")
	message := flag.String("message", "", "message to classify")
	viewers := flag.String("viewers", "", "comma separated viewers to resolve responses for")
	showPrompt := flag.Bool("prompt", false, "print the rendered prompt before classifying")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	if strings.TrimSpace(*speaker) == "" || strings.TrimSpace(*message) == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg.OracleProvider = strings.ToLower(strings.TrimSpace(*provider))
	cfg.OracleModel = *model
	cfg.OracleFallbackProvider = ""
	cfg.OracleBreakerFailures = 0
	if *timeout > 0 {
		cfg.OracleTimeout = *timeout
	}

	window := moderation.NewWindow(cfg.MaxHistory)
	if *contextFile != "" {
		turns, err := readTurns(*contextFile)
		if err != nil {
			log.Fatalf("read context: %v", err)
		}
		for _, t := range turns {
			window.Append(t)
		}
	}

	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	oracle, err := bootstrap.BuildOracle(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("build oracle: %v", err)
	}
	defer func() { _ = oracle.Close() }()

	session := moderation.NewSession(window, oracle)
	if *showPrompt {
		fmt.Println(moderation.BuildPrompt(window.Render(), *message))
		fmt.Println(strings.Repeat("-", 60))
	}

	start := time.Now()
	res := session.Handle(ctx, *speaker, *message)
	elapsed := time.Since(start)

	out := map[string]any{
		"provider":        cfg.OracleProvider,
		"model":           cfg.OracleModel,
		"elapsed_ms":      elapsed.Milliseconds(),
		"outcome":         res.Verdict.Outcome,
		"verdict":         res.Verdict,
		"viewer_response": res.ViewerResponse,
	}
	if *viewers != "" {
		var resolved []moderation.ResolvedResponse
		for _, v := range strings.Split(*viewers, ",") {
			if v = strings.TrimSpace(v); v != "" {
				resolved = append(resolved, moderation.Resolve(res.Verdict, v))
			}
		}
		out["resolved"] = resolved
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode verdict: %v", err)
	}
}

func readTurns(path string) ([]moderation.Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var turns []moderation.Turn
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		speaker, text, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %q is not \"speaker: text\"", line)
		}
		turns = append(turns, moderation.Turn{Speaker: strings.TrimSpace(speaker), Text: strings.TrimSpace(text)})
	}
	return turns, scanner.Err()
}
