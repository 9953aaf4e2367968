// Package chat answers questions about outlets from the exported snapshot.
package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/export"
	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/pkg/anthropic"
)

// Sentinel errors. Compare with errors.Is.
var (
	ErrEmptyQuestion = errors.New("chat: question is empty")
	ErrNoSnapshot    = errors.New("chat: outlet snapshot not found; run `outlet-cli run` or `outlet-cli export` first")
)

const systemPrompt = `You answer questions about restaurant outlets using only the outlet table below.
Each row lists name, address, phone, map link, coordinates and services.
If the table does not contain the answer, say so. Do not invent outlets.`

// Config configures the answerer.
type Config struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// SnapshotLoader returns the outlets questions are answered from.
type SnapshotLoader func(ctx context.Context) ([]model.Outlet, error)

// FileSnapshot loads the XLSX snapshot at path on every call, so a fresh
// export is picked up without a restart.
func FileSnapshot(path string) SnapshotLoader {
	return func(_ context.Context) ([]model.Outlet, error) {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, eris.Wrapf(ErrNoSnapshot, "chat: load %s", path)
			}
			return nil, eris.Wrapf(err, "chat: stat %s", path)
		}
		return export.ReadXLSX(path)
	}
}

// Answerer turns a question and the snapshot into a completion request.
type Answerer struct {
	client anthropic.Client
	load   SnapshotLoader
	cfg    Config
}

// NewAnswerer creates an Answerer.
func NewAnswerer(client anthropic.Client, load SnapshotLoader, cfg Config) *Answerer {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Answerer{client: client, load: load, cfg: cfg}
}

// Answer returns the model's answer to question.
func (a *Answerer) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	outlets, err := a.load(ctx)
	if err != nil {
		return "", err
	}

	temp := a.cfg.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt+"\n\n"+RenderTable(outlets), "5m"),
		Messages:    []anthropic.Message{{Role: "user", Content: question}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "chat: answer")
	}
	resp.Usage.LogUsage(a.cfg.Model, "chat")

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		zap.L().Warn("chat: empty completion", zap.String("stop_reason", resp.StopReason))
		return "", eris.New("chat: model returned no text")
	}
	return answer, nil
}

// RenderTable formats outlets as a pipe-separated table with a header row.
// Absent values print as N/A.
func RenderTable(outlets []model.Outlet) string {
	var b strings.Builder
	b.WriteString(strings.Join(export.Columns, " | "))
	b.WriteByte('\n')
	for _, o := range outlets {
		lat, lng := model.Absent, model.Absent
		if o.Coordinates != nil {
			lat = fmt.Sprintf("%.6f", o.Coordinates.Latitude)
			lng = fmt.Sprintf("%.6f", o.Coordinates.Longitude)
		}
		services := model.Absent
		if len(o.Services) > 0 {
			services = strings.Join(o.Services, ", ")
		}
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s | %s | %s\n",
			o.Name, o.DisplayAddress(), o.DisplayPhone(), o.DisplayLink(), lat, lng, services)
	}
	return b.String()
}
