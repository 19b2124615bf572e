package rankctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/internal/domain/types"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Renderer writes command results as tables or JSON.
type Renderer struct {
	w       io.Writer
	format  string
	colored bool
}

// NewRenderer returns a renderer writing to w. Unknown formats fall back to
// tables.
func NewRenderer(w io.Writer, format string, colored bool) *Renderer {
	if format != FormatJSON {
		format = FormatTable
	}
	return &Renderer{w: w, format: format, colored: colored}
}

// Catalog renders the aspect catalog.
func (r *Renderer) Catalog(v types.CatalogView) error {
	if r.format == FormatJSON {
		return r.json(v)
	}
	rows := make([][]string, 0, len(v.Positive)+len(v.Negative))
	for _, e := range v.Positive {
		rows = append(rows, []string{"positive", e.Code, "+" + strconv.Itoa(e.Points), e.Label})
	}
	for _, e := range v.Negative {
		rows = append(rows, []string{"negative", e.Code, strconv.Itoa(e.Points), e.Label})
	}
	return r.table("Aspect catalog", []string{"polarity", "code", "points", "label"}, rows)
}

// Submitted renders a submission result.
func (r *Renderer) Submitted(res SubmitResult) error {
	if r.format == FormatJSON {
		return r.json(res)
	}
	_, err := fmt.Fprintf(r.w, "%s evaluation %s\n", res.Status, res.EvaluationID)
	return err
}

// Statistics renders every observed aspect of a party.
func (r *Renderer) Statistics(s types.Statistics) error {
	if r.format == FormatJSON {
		return r.json(s)
	}
	if err := r.header(s.PartyID, s.Tier, s.Score, s.TotalEvaluations); err != nil {
		return err
	}
	return r.aspects(s.Positive, s.Negative)
}

// Summary renders the top aspects of a party.
func (r *Renderer) Summary(s types.Summary) error {
	if r.format == FormatJSON {
		return r.json(s)
	}
	if err := r.header(s.PartyID, s.Tier, s.Score, s.TotalEvaluations); err != nil {
		return err
	}
	return r.aspects(s.Positive, s.Negative)
}

// Ranking renders the public view of a party.
func (r *Renderer) Ranking(v types.RankingView) error {
	if r.format == FormatJSON {
		return r.json(v)
	}
	if err := r.header(v.PartyID, v.Tier, v.Score, v.TotalEvaluations); err != nil {
		return err
	}
	rows := make([][]string, len(v.NegativeAspects))
	for i, a := range v.NegativeAspects {
		rows[i] = []string{a.Label, strconv.Itoa(a.Percentage) + "%"}
	}
	return r.table("", []string{"negative aspect", "share"}, rows)
}

// Leaderboard renders ranked parties.
func (r *Renderer) Leaderboard(entries []types.LeaderboardEntry) error {
	if r.format == FormatJSON {
		return r.json(entries)
	}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			strconv.Itoa(e.Rank),
			e.PartyID,
			strconv.Itoa(e.Score),
			r.tier(e.Tier),
			strconv.Itoa(e.TotalEvaluations),
		}
	}
	return r.table("Leaderboard", []string{"rank", "party", "score", "tier", "evaluations"}, rows)
}

// Seeded renders a seeding report.
func (r *Renderer) Seeded(rep SeedReport) error {
	if r.format == FormatJSON {
		return r.json(rep)
	}
	rows := [][]string{
		{"submitted", strconv.Itoa(rep.Submitted)},
		{"applied", strconv.Itoa(rep.Applied)},
		{"duplicates", strconv.Itoa(rep.Duplicates)},
		{"rejected", strconv.Itoa(rep.Rejected)},
		{"failed", strconv.Itoa(rep.Failed)},
		{"elapsed", rep.Elapsed.String()},
	}
	return r.table("Seed report", []string{"outcome", "count"}, rows)
}

func (r *Renderer) header(partyID string, tier model.Tier, score, total int) error {
	_, err := fmt.Fprintf(r.w, "%s  %s  score %d  evaluations %d\n\n", partyID, r.tier(tier), score, total)
	return err
}

func (r *Renderer) aspects(positive, negative []types.AspectStat) error {
	rows := make([][]string, 0, len(positive)+len(negative))
	add := func(polarity string, stats []types.AspectStat) {
		for _, s := range stats {
			label := s.Label
			if label == "" {
				label = s.Aspect
			}
			rows = append(rows, []string{polarity, label, strconv.Itoa(s.Quantity), strconv.Itoa(s.Percentage) + "%"})
		}
	}
	add("positive", positive)
	add("negative", negative)
	return r.table("", []string{"polarity", "aspect", "quantity", "share"}, rows)
}

func (r *Renderer) tier(t model.Tier) string {
	if !r.colored {
		return t.String()
	}
	var c *color.Color
	switch t {
	case model.TierDiamond:
		c = color.New(color.FgCyan, color.Bold)
	case model.TierPlatinum:
		c = color.New(color.FgHiWhite)
	case model.TierGold:
		c = color.New(color.FgYellow)
	case model.TierSilver:
		c = color.New(color.FgWhite)
	default:
		c = color.New(color.FgRed)
	}
	c.EnableColor()
	return c.Sprint(t.String())
}

func (r *Renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) table(title string, headers []string, rows [][]string) error {
	if title != "" {
		if r.colored {
			_, _ = color.New(color.Bold).Fprintln(r.w, title)
		} else {
			_, _ = fmt.Fprintln(r.w, title)
		}
	}

	table := tablewriter.NewTable(r.w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.Off},
			},
		}),
	)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, err := fmt.Fprintln(r.w)
	return err
}
