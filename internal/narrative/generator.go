// File path: internal/narrative/generator.go
package narrative

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	langgraphgo "github.com/tmc/langgraphgo"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/pipeline"
)

const defaultSectionDelay = time.Second

// Section is one narrative prompt. The section set is fixed; reviewers
// expect the same headings on every submission.
type Section struct {
	ID     string
	Title  string
	Prompt string
}

// SectionResult carries the generated text for one section, or the reason
// it was skipped.
type SectionResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Text    string `json:"text,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Document is the assembled narrative for one finished run.
type Document struct {
	ProjectID   string          `json:"project_id"`
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Sections    []SectionResult `json:"sections"`
}

// Generator produces narrative sections one at a time. Text generation is
// deliberately sequential with a pause between calls; the upstream provider
// rate-limits aggressively and parallel section drafts read disjointed.
type Generator struct {
	provider llm.Provider
	delay    time.Duration
	sections []Section
}

// NewGenerator wires the text provider. The inter-section delay comes from
// PERMITPACK_NARRATIVE_DELAY when set.
func NewGenerator(provider llm.Provider) *Generator {
	delay := defaultSectionDelay
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_NARRATIVE_DELAY")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			common.Logger().Warn("narrative: invalid PERMITPACK_NARRATIVE_DELAY", "value", raw)
		} else {
			delay = parsed
		}
	}
	return &Generator{provider: provider, delay: delay, sections: defaultSections()}
}

func defaultSections() []Section {
	return []Section{
		{
			ID:    "system-overview",
			Title: "System Overview",
			Prompt: "Write a short system overview paragraph for a residential solar " +
				"permit submission. Describe the installed equipment and system scale " +
				"in plain language for a plan reviewer.",
		},
		{
			ID:    "equipment-summary",
			Title: "Equipment Summary",
			Prompt: "Summarize the major equipment in the bill of materials below, one " +
				"sentence per component class, naming manufacturer and model where known.",
		},
		{
			ID:    "code-compliance",
			Title: "Code Compliance",
			Prompt: "Write a code compliance statement noting that manufacturer " +
				"datasheets for the listed equipment are attached and that the design " +
				"follows the adopted electrical code.",
		},
	}
}

// SectionCount reports the fixed number of sections a document will carry.
func (g *Generator) SectionCount() int {
	return len(g.sections)
}

// Generate drafts every section for a finished run. Sections run strictly
// one after another with the configured delay between provider calls. A
// failed section is recorded as skipped and never aborts the document.
func (g *Generator) Generate(ctx context.Context, report *pipeline.Report) (Document, error) {
	if report == nil {
		return Document{}, fmt.Errorf("report required")
	}
	logger := common.Logger()
	doc := Document{
		ProjectID:   report.ProjectID,
		RunID:       report.RunID,
		GeneratedAt: time.Now().UTC(),
		Sections:    make([]SectionResult, 0, len(g.sections)),
	}
	equipment := describeEquipment(report)
	for i, section := range g.sections {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		if i > 0 && g.delay > 0 {
			select {
			case <-ctx.Done():
				return Document{}, ctx.Err()
			case <-time.After(g.delay):
			}
		}
		result := SectionResult{ID: section.ID, Title: section.Title}
		text, err := g.draftSection(ctx, section, equipment)
		if err != nil {
			if ctx.Err() != nil {
				return Document{}, ctx.Err()
			}
			logger.Warn("narrative: section skipped", "section", section.ID, "error", err)
			result.Skipped = true
			result.Error = err.Error()
		} else {
			result.Text = text
		}
		doc.Sections = append(doc.Sections, result)
	}
	return doc, nil
}

func (g *Generator) draftSection(ctx context.Context, section Section, equipment string) (string, error) {
	if g.provider == nil {
		return "", fmt.Errorf("no text provider configured")
	}
	graph := langgraphgo.NewGraph(func(ctx context.Context, goal string) (string, error) {
		messages := []llm.Message{
			{Role: "system", Content: "You draft clear, factual permit narrative text for plan reviewers."},
			{Role: "user", Content: goal},
		}
		return g.provider.Chat(ctx, messages)
	})
	goal := section.Prompt
	if equipment != "" {
		goal = goal + "\n\nEquipment:\n" + equipment
	}
	text, err := graph.Run(ctx, goal)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty section text")
	}
	return text, nil
}

func describeEquipment(report *pipeline.Report) string {
	var lines []string
	for _, component := range report.Components {
		parts := make([]string, 0, 3)
		if component.Manufacturer != "" {
			parts = append(parts, component.Manufacturer)
		}
		if component.PartNumber != "" {
			parts = append(parts, component.PartNumber)
		}
		if component.Name != "" {
			parts = append(parts, component.Name)
		}
		if len(parts) == 0 {
			continue
		}
		lines = append(lines, "- "+strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}
