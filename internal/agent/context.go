package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/courtside/courtside/internal/intent"
	"github.com/courtside/courtside/internal/nba"
)

// SportsClient is the subset of the sports data client the assembler uses.
type SportsClient interface {
	Standings(ctx context.Context) (nba.Standings, error)
	TodaysGames(ctx context.Context) ([]nba.Game, error)
	PlayerStats(ctx context.Context, playerName string) (nba.PlayerStats, error)
	InjuryReport(ctx context.Context) ([]nba.Injury, error)
	News(ctx context.Context) ([]nba.NewsItem, error)
}

// ContextData bundles the sports data fetched for one message. When every
// attempted fetch fails, Err carries a message and the per-category fields
// hold their fallback values.
type ContextData struct {
	Intents   []intent.Category
	Player    *nba.PlayerStats
	Standings *nba.Standings
	Games     []nba.Game
	Injuries  []nba.Injury
	News      []nba.NewsItem
	Timestamp time.Time
	Err       string
}

// AssembleContext fetches data for every matched category. Each fetch
// failure is caught independently and contributes a fallback value; only
// when all attempted fetches fail does the result become error-shaped.
func AssembleContext(ctx context.Context, client SportsClient, message string, cats []intent.Category) *ContextData {
	data := &ContextData{
		Intents:   cats,
		Timestamp: time.Now(),
	}

	attempted, failed := 0, 0

	if intent.Contains(cats, intent.CategoryPlayer) {
		// Only fetch for recognized players; unknown names skip the call.
		if name, ok := intent.ResolvePlayer(message); ok {
			attempted++
			stats, err := client.PlayerStats(ctx, name)
			if err != nil {
				failed++
			}
			data.Player = &stats
		}
	}

	if intent.Contains(cats, intent.CategoryTeam) {
		attempted++
		standings, err := client.Standings(ctx)
		if err != nil {
			failed++
		}
		data.Standings = &standings
	}

	if intent.Contains(cats, intent.CategoryGame) {
		attempted++
		games, err := client.TodaysGames(ctx)
		if err != nil {
			failed++
		}
		data.Games = games
	}

	if intent.Contains(cats, intent.CategoryInjury) {
		attempted++
		injuries, err := client.InjuryReport(ctx)
		if err != nil {
			failed++
		}
		data.Injuries = injuries
	}

	if intent.Contains(cats, intent.CategoryNews) {
		attempted++
		news, err := client.News(ctx)
		if err != nil {
			failed++
		}
		data.News = news
	}

	if attempted > 0 && failed == attempted {
		data.Err = "live sports data is currently unavailable"
	}

	return data
}

// Digest renders a condensed human-readable summary of the context, one
// line per category, for embedding in the model prompt.
func (d *ContextData) Digest() string {
	if d.Err != "" {
		return "Note: " + d.Err + "; answer from general basketball knowledge."
	}

	var lines []string

	if d.Player != nil {
		p := d.Player
		lines = append(lines, fmt.Sprintf(
			"Player %s (%s, %s, %s season): %.1f pts, %.1f reb, %.1f ast, %.1f stl, %.1f blk over %.0f games, %.1f%% FG",
			p.Name, p.Team, p.Position, p.Season,
			p.Points, p.Rebounds, p.Assists, p.Steals, p.Blocks, p.Games, p.FGPct))
	}

	if d.Standings != nil {
		east := leaderLine(d.Standings.Eastern)
		west := leaderLine(d.Standings.Western)
		lines = append(lines, fmt.Sprintf("Standings: East leader %s; West leader %s", east, west))
	}

	if d.Games != nil {
		if len(d.Games) == 0 {
			lines = append(lines, "Games: none on today's scoreboard")
		} else {
			parts := make([]string, 0, 3)
			for i, g := range d.Games {
				if i == 3 {
					break
				}
				parts = append(parts, fmt.Sprintf("%s at %s (%s)", g.Away, g.Home, g.Status))
			}
			lines = append(lines, fmt.Sprintf("Games today (%d): %s", len(d.Games), strings.Join(parts, "; ")))
		}
	}

	if d.Injuries != nil {
		if len(d.Injuries) == 0 {
			lines = append(lines, "Injuries: no players currently listed")
		} else {
			parts := make([]string, 0, 3)
			for i, inj := range d.Injuries {
				if i == 3 {
					break
				}
				parts = append(parts, fmt.Sprintf("%s (%s, %s)", inj.Player, inj.Team, inj.Status))
			}
			lines = append(lines, fmt.Sprintf("Injury report (%d listed): %s", len(d.Injuries), strings.Join(parts, "; ")))
		}
	}

	if d.News != nil {
		if len(d.News) == 0 {
			lines = append(lines, "News: no recent headlines available")
		} else {
			parts := make([]string, 0, 3)
			for i, item := range d.News {
				if i == 3 {
					break
				}
				parts = append(parts, item.Title)
			}
			lines = append(lines, "Recent headlines: "+strings.Join(parts, "; "))
		}
	}

	if len(lines) == 0 {
		return "No specific data available"
	}
	return strings.Join(lines, "\n")
}

func leaderLine(rows []nba.TeamStanding) string {
	if len(rows) == 0 {
		return "unavailable"
	}
	return fmt.Sprintf("%s (%s)", rows[0].Team, rows[0].Record)
}
