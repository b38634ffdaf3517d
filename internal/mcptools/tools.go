// Package mcptools exposes stored recordings and transcripts as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/koewake/internal/repository"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	ServerName    = "koewake"
	ServerVersion = "1.0.0"

	defaultListLimit = 20
	maxListLimit     = 200
)

// Store is the read side of the repository the tools need.
type Store interface {
	GetRecording(ctx context.Context, id string) (*repository.Recording, error)
	ListRecordings(ctx context.Context, limit int) ([]repository.Recording, error)
	ListEntriesByRecordingID(ctx context.Context, recordingID string) ([]repository.TranscriptEntry, error)
}

type Tools struct {
	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Tools {
	return &Tools{store: store, logger: logger}
}

// NewServer returns an MCP server with every tool registered.
func (t *Tools) NewServer() *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("list_recordings",
		mcp.WithDescription("List recent recordings, newest first."),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum recordings to return (1-%d, default %d).", maxListLimit, defaultListLimit)),
		),
	), t.ListRecordings)
	s.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Return the speaker-labelled transcript of one recording."),
		mcp.WithString("recording_id",
			mcp.Required(),
			mcp.Description("Recording ID as returned by list_recordings."),
		),
	), t.GetTranscript)
	return s
}

type recordingSummary struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	EntryCount int    `json:"entry_count"`
}

func (t *Tools) ListRecordings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxListLimit)), nil
	}

	recs, err := t.store.ListRecordings(ctx, limit)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to list recordings")
		return mcp.NewToolResultError("failed to list recordings"), nil
	}
	out := make([]recordingSummary, 0, len(recs))
	for _, r := range recs {
		s := recordingSummary{
			ID:         r.ID,
			Status:     string(r.Status),
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			StopReason: r.StopReason,
			EntryCount: r.EntryCount,
		}
		if r.EndedAt != nil {
			s.EndedAt = r.EndedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, s)
	}
	body, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode recordings: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (t *Tools) GetTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("recording_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("recording_id is required"), nil
	}

	rec, err := t.store.GetRecording(ctx, id)
	if err != nil {
		t.logger.Error().Err(err).Str("recordingId", id).Msg("failed to load recording")
		return mcp.NewToolResultError("failed to load recording"), nil
	}
	if rec == nil {
		return mcp.NewToolResultError(fmt.Sprintf("recording %s not found", id)), nil
	}
	entries, err := t.store.ListEntriesByRecordingID(ctx, id)
	if err != nil {
		t.logger.Error().Err(err).Str("recordingId", id).Msg("failed to load transcript")
		return mcp.NewToolResultError("failed to load transcript"), nil
	}
	return mcp.NewToolResultText(formatTranscript(rec, entries)), nil
}

func formatTranscript(rec *repository.Recording, entries []repository.TranscriptEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recording %s (%s), started %s\n", rec.ID, rec.Status, rec.StartedAt.UTC().Format(time.RFC3339))
	if len(entries) == 0 {
		b.WriteString("No transcript entries.\n")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%s [%s] %s\n", e.SpokenAt.Sub(rec.StartedAt).Truncate(time.Second), e.Label, e.Content)
	}
	return b.String()
}
