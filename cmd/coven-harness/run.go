// ABOUTME: Scenario execution: sends each step, checks expectations, writes artifacts
// ABOUTME: Prints colored verdicts per step and fails the run on any unmet expectation

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/coven-harness/internal/activity"
	"github.com/2389/coven-harness/internal/auth"
	"github.com/2389/coven-harness/internal/check"
	"github.com/2389/coven-harness/internal/config"
	"github.com/2389/coven-harness/internal/exchange"
	"github.com/2389/coven-harness/internal/harness"
	"github.com/2389/coven-harness/internal/ingress"
	"github.com/2389/coven-harness/internal/scenario"
	"github.com/2389/coven-harness/internal/transcript"
)

func runScenario(ctx context.Context, scenarioPath string) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	scn, err := scenario.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Scenario: %s (%d steps)\n", scn.Name, len(scn.Steps))
	green.Print("    ▶ ")
	fmt.Printf("Agent:    %s\n", cfg.Agent.URL)
	fmt.Println()

	recorder := transcript.NewRecorder()
	correlator := exchange.NewCorrelator(cfg.ExchangeTiming(), logger)
	defer correlator.Close()

	ingressAddr := cfg.Ingress.Addr
	if ingressAddr == "" {
		ingressAddr = "127.0.0.1:0"
	}
	ing, err := ingress.New(ingressAddr, correlator, recorder, logger)
	if err != nil {
		return fmt.Errorf("starting ingress: %w", err)
	}
	ing.Start()
	defer func() {
		_ = ing.Shutdown(context.Background())
	}()

	serviceURL := ing.URL()
	if cfg.Ingress.BaseURL != "" {
		serviceURL = cfg.Ingress.BaseURL
	}

	tokens := tokenProvider(cfg.Auth)
	submitter := harness.NewHTTPSubmitter(cfg.Agent.URL, tokens)
	client := harness.New(submitter, correlator, recorder, serviceURL, logger)

	failures := 0
	for i, step := range scn.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}

		replies, err := runStep(ctx, client, step)
		if err != nil {
			failures++
			color.New(color.FgRed, color.Bold).Printf("  FAIL  ")
			fmt.Printf("%s\n", name)
			gray.Printf("        %v\n", err)
			continue
		}

		stepFailures := evaluateExpectations(step, replies)
		if len(stepFailures) == 0 {
			green.Printf("  PASS  ")
			fmt.Printf("%s  ", name)
			gray.Printf("(%d replies)\n", len(replies))
			continue
		}

		failures++
		color.New(color.FgRed, color.Bold).Printf("  FAIL  ")
		fmt.Printf("%s\n", name)
		for _, msg := range stepFailures {
			gray.Printf("        %s\n", msg)
		}
	}

	fmt.Println()
	if err := writeArtifacts(ctx, cfg.Artifact, recorder, logger); err != nil {
		logger.Error("writing artifacts", "error", err)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d steps failed", failures, len(scn.Steps))
	}
	green.Println("  all steps passed")
	return nil
}

// runStep sends one step under its delivery mode and returns the
// collected replies.
func runStep(ctx context.Context, client *harness.Client, step scenario.Step) ([]activity.Activity, error) {
	act := step.Activity()
	switch activity.DeliveryMode(step.Mode) {
	case activity.DeliveryExpectReplies:
		return client.SendExpectReplies(ctx, act)
	case activity.DeliveryStream:
		return client.SendStream(ctx, act)
	default:
		ex, err := client.Send(ctx, act)
		if err != nil {
			return nil, err
		}
		return client.Resolve(ctx, ex.ConversationID())
	}
}

// evaluateExpectations runs every expectation of a step through the
// check engine and collects failure messages.
func evaluateExpectations(step scenario.Step, replies []activity.Activity) []string {
	var failures []string
	for _, exp := range step.Expect {
		q := check.Check(replies)
		if len(exp.Where) > 0 {
			q = q.Where(toCriteria(exp.Where))
		}

		switch exp.Quantifier {
		case "for_any":
			q = q.ForAny()
		case "for_none":
			q = q.ForNone()
		case "for_one":
			q = q.ForOne()
		case "for_exactly":
			q = q.ForExactly(exp.Exactly)
		}

		var err error
		if exp.Count != nil {
			err = q.CountIs(*exp.Count)
		} else {
			err = q.That(toCriteria(exp.That))
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// toCriteria converts scenario string criteria into check criteria.
func toCriteria(m map[string]string) check.Criteria {
	criteria := make(check.Criteria, len(m))
	for k, v := range m {
		criteria[k] = v
	}
	return criteria
}

// tokenProvider picks the provider matching the auth config.
func tokenProvider(cfg config.AuthConfig) auth.TokenProvider {
	if cfg.JWTSecret != "" {
		return auth.NewSelfIssuedProvider([]byte(cfg.JWTSecret), cfg.Issuer, "coven-harness")
	}
	return auth.NewStaticProvider(cfg.Token)
}

// writeArtifacts renders the transcript report and archive when
// configured.
func writeArtifacts(ctx context.Context, cfg config.ArtifactConfig, recorder *transcript.Recorder, logger *slog.Logger) error {
	entries := recorder.Snapshot()

	if cfg.ReportDir != "" {
		if err := os.MkdirAll(cfg.ReportDir, 0755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}

		mdPath := filepath.Join(cfg.ReportDir, "transcript.md")
		md, err := os.Create(mdPath)
		if err != nil {
			return fmt.Errorf("creating markdown report: %w", err)
		}
		if err := transcript.WriteMarkdown(md, entries); err != nil {
			md.Close()
			return fmt.Errorf("writing markdown report: %w", err)
		}
		md.Close()

		htmlPath := filepath.Join(cfg.ReportDir, "transcript.html")
		html, err := os.Create(htmlPath)
		if err != nil {
			return fmt.Errorf("creating HTML report: %w", err)
		}
		if err := transcript.WriteHTML(html, entries); err != nil {
			html.Close()
			return fmt.Errorf("writing HTML report: %w", err)
		}
		html.Close()

		logger.Info("transcript reports written", "dir", cfg.ReportDir)
	}

	if cfg.ArchivePath != "" {
		archive, err := transcript.NewArchive(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()

		runID := uuid.New().String()
		if err := archive.Save(ctx, runID, entries); err != nil {
			return fmt.Errorf("saving archive: %w", err)
		}
		logger.Info("transcript archived", "path", cfg.ArchivePath, "run_id", runID)
	}

	return nil
}
