package nba

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// playerIDs maps canonical lowercase player names to provider player IDs.
var playerIDs = map[string]string{
	"lebron james":          "2544",
	"stephen curry":         "201939",
	"giannis antetokounmpo": "203507",
	"luka doncic":           "1629029",
	"jayson tatum":          "1628369",
}

// statValue extracts a named stat from an ESPN stats array.
func statValue(stats []espnStat, typ string) float64 {
	for _, s := range stats {
		if s.Type == typ {
			return s.Value
		}
	}
	return 0
}

type espnStat struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

type espnStandingsResponse struct {
	Children []struct {
		Standings struct {
			Entries []struct {
				Team struct {
					DisplayName string `json:"displayName"`
				} `json:"team"`
				Stats []espnStat `json:"stats"`
			} `json:"entries"`
		} `json:"standings"`
	} `json:"children"`
}

// Standings returns the current conference tables.
func (c *Client) Standings(ctx context.Context) (Standings, error) {
	const cacheKey = "standings"
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.(Standings), nil
	}

	var resp espnStandingsResponse
	if err := c.getJSON(ctx, c.siteBase+"/standings", &resp); err != nil {
		slog.Warn("standings fetch failed", "error", err)
		return fallbackStandings(), err
	}
	if len(resp.Children) < 2 {
		err := fmt.Errorf("standings: expected 2 conferences, got %d", len(resp.Children))
		slog.Warn("standings shape mismatch", "error", err)
		return fallbackStandings(), err
	}

	parse := func(idx int) []TeamStanding {
		entries := resp.Children[idx].Standings.Entries
		rows := make([]TeamStanding, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, TeamStanding{
				Rank: int(statValue(e.Stats, "rank")),
				Team: e.Team.DisplayName,
				Record: fmt.Sprintf("%d-%d",
					int(statValue(e.Stats, "wins")), int(statValue(e.Stats, "losses"))),
				GamesBehind: statValue(e.Stats, "gamesBehind"),
			})
		}
		return rows
	}

	standings := Standings{Eastern: parse(0), Western: parse(1)}
	c.setCached(cacheKey, standings)
	return standings, nil
}

type espnScoreboardResponse struct {
	Events []struct {
		ID           string `json:"id"`
		Date         string `json:"date"`
		Status       struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
		} `json:"status"`
		Competitions []struct {
			Venue struct {
				FullName string `json:"fullName"`
			} `json:"venue"`
			Competitors []struct {
				HomeAway string `json:"homeAway"`
				Score    string `json:"score"`
				Team     struct {
					DisplayName string `json:"displayName"`
				} `json:"team"`
			} `json:"competitors"`
		} `json:"competitions"`
	} `json:"events"`
}

func (r *espnScoreboardResponse) games() []Game {
	games := make([]Game, 0, len(r.Events))
	for _, e := range r.Events {
		if len(e.Competitions) == 0 {
			continue
		}
		comp := e.Competitions[0]
		g := Game{
			ID:     e.ID,
			Date:   e.Date,
			Status: e.Status.Type.Name,
			Venue:  comp.Venue.FullName,
		}
		if g.Venue == "" {
			g.Venue = "TBD"
		}
		for _, c := range comp.Competitors {
			switch c.HomeAway {
			case "home":
				g.Home = c.Team.DisplayName
				g.HomeScore = c.Score
			case "away":
				g.Away = c.Team.DisplayName
				g.AwayScore = c.Score
			}
		}
		games = append(games, g)
	}
	return games
}

// TodaysGames returns the current scoreboard.
func (c *Client) TodaysGames(ctx context.Context) ([]Game, error) {
	const cacheKey = "todays-games"
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.([]Game), nil
	}

	var resp espnScoreboardResponse
	if err := c.getJSON(ctx, c.siteBase+"/scoreboard", &resp); err != nil {
		slog.Warn("scoreboard fetch failed", "error", err)
		return fallbackGames(), err
	}

	games := resp.games()
	c.setCached(cacheKey, games)
	return games, nil
}

// UpcomingGames returns games scheduled within the next `days` days.
func (c *Client) UpcomingGames(ctx context.Context, days int) ([]Game, error) {
	cacheKey := "upcoming-games-" + strconv.Itoa(days)
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.([]Game), nil
	}

	var resp espnScoreboardResponse
	if err := c.getJSON(ctx, c.siteBase+"/scoreboard", &resp); err != nil {
		slog.Warn("upcoming games fetch failed", "error", err)
		return fallbackGames(), err
	}

	now := time.Now()
	horizon := now.Add(time.Duration(days) * 24 * time.Hour)
	upcoming := make([]Game, 0)
	for _, g := range resp.games() {
		gameTime, err := time.Parse(time.RFC3339, g.Date)
		if err != nil {
			continue
		}
		if gameTime.After(now) && !gameTime.After(horizon) {
			g.Status = "scheduled"
			g.HomeScore = ""
			g.AwayScore = ""
			upcoming = append(upcoming, g)
		}
	}

	c.setCached(cacheKey, upcoming)
	return upcoming, nil
}

// FilterGamesByTeam returns only games where the given team plays. The team
// name is matched as a case-insensitive substring.
func FilterGamesByTeam(games []Game, team string) []Game {
	if team == "" {
		return games
	}
	needle := strings.ToLower(team)
	filtered := make([]Game, 0)
	for _, g := range games {
		if strings.Contains(strings.ToLower(g.Home), needle) ||
			strings.Contains(strings.ToLower(g.Away), needle) {
			filtered = append(filtered, g)
		}
	}
	return filtered
}

// LiveScores returns today's games that are in progress or final.
func (c *Client) LiveScores(ctx context.Context) ([]Game, error) {
	games, err := c.TodaysGames(ctx)
	if err != nil {
		return fallbackGames(), err
	}
	live := make([]Game, 0)
	for _, g := range games {
		switch g.Status {
		case "STATUS_IN_PROGRESS", "STATUS_FINAL", "in-progress", "final":
			live = append(live, g)
		}
	}
	return live, nil
}

type statsProfileResponse struct {
	ResultSets []struct {
		RowSet [][]any `json:"rowSet"`
	} `json:"resultSets"`
}

func rowString(row []any, idx int) string {
	if idx < len(row) {
		if s, ok := row[idx].(string); ok {
			return s
		}
	}
	return ""
}

func rowFloat(row []any, idx int) float64 {
	if idx < len(row) {
		if f, ok := row[idx].(float64); ok {
			return f
		}
	}
	return 0
}

// PlayerStats returns the season stat line for a known player. Names not in
// the alias table skip the network entirely and return the fallback record.
func (c *Client) PlayerStats(ctx context.Context, playerName string) (PlayerStats, error) {
	name := strings.ToLower(strings.TrimSpace(playerName))
	cacheKey := "player-" + name
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.(PlayerStats), nil
	}

	playerID, ok := playerIDs[name]
	if !ok {
		return fallbackPlayerStats(playerName), fmt.Errorf("player stats: unknown player %q", playerName)
	}

	var resp statsProfileResponse
	reqURL := c.statsBase + "/playerprofilev2?PlayerID=" + url.QueryEscape(playerID)
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		slog.Warn("player stats fetch failed", "player", name, "error", err)
		return fallbackPlayerStats(playerName), err
	}
	if len(resp.ResultSets) == 0 || len(resp.ResultSets[0].RowSet) == 0 {
		err := fmt.Errorf("player stats: empty result set for %q", playerName)
		slog.Warn("player stats shape mismatch", "player", name, "error", err)
		return fallbackPlayerStats(playerName), err
	}

	row := resp.ResultSets[0].RowSet[0]
	stats := PlayerStats{
		Name:     rowString(row, 3),
		Team:     rowString(row, 4),
		Position: rowString(row, 5),
		Season:   currentSeason,
		Games:    rowFloat(row, 6),
		Points:   rowFloat(row, 7),
		Rebounds: rowFloat(row, 8),
		Assists:  rowFloat(row, 9),
		Steals:   rowFloat(row, 10),
		Blocks:   rowFloat(row, 11),
		FGPct:    rowFloat(row, 12),
		ThreePct: rowFloat(row, 13),
		FTPct:    rowFloat(row, 14),
		Minutes:  rowFloat(row, 15),
	}
	if stats.Name == "" {
		stats.Name = playerName
	}

	c.setCached(cacheKey, stats)
	return stats, nil
}

type espnTeamsResponse struct {
	Sports []struct {
		Leagues []struct {
			Teams []struct {
				Team struct {
					DisplayName  string `json:"displayName"`
					Abbreviation string `json:"abbreviation"`
					Location     string `json:"location"`
					Founded      int    `json:"founded"`
					Venue        struct {
						FullName string `json:"fullName"`
					} `json:"venue"`
					Championships []any `json:"championships"`
				} `json:"team"`
			} `json:"teams"`
		} `json:"leagues"`
	} `json:"sports"`
}

// TeamInfo returns franchise details for the team whose display name
// contains teamName (case-insensitive).
func (c *Client) TeamInfo(ctx context.Context, teamName string) (TeamInfo, error) {
	name := strings.ToLower(strings.TrimSpace(teamName))
	cacheKey := "team-" + name
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.(TeamInfo), nil
	}

	var resp espnTeamsResponse
	if err := c.getJSON(ctx, c.siteBase+"/teams", &resp); err != nil {
		slog.Warn("teams fetch failed", "error", err)
		return fallbackTeamInfo(teamName), err
	}
	if len(resp.Sports) == 0 || len(resp.Sports[0].Leagues) == 0 {
		err := fmt.Errorf("teams: unexpected payload shape")
		slog.Warn("teams shape mismatch", "error", err)
		return fallbackTeamInfo(teamName), err
	}

	for _, t := range resp.Sports[0].Leagues[0].Teams {
		if !strings.Contains(strings.ToLower(t.Team.DisplayName), name) {
			continue
		}
		info := TeamInfo{
			Name:          t.Team.DisplayName,
			Abbreviation:  t.Team.Abbreviation,
			City:          t.Team.Location,
			Arena:         t.Team.Venue.FullName,
			Founded:       "Unknown",
			Championships: len(t.Team.Championships),
		}
		if info.Arena == "" {
			info.Arena = "TBD"
		}
		if t.Team.Founded > 0 {
			info.Founded = strconv.Itoa(t.Team.Founded)
		}
		c.setCached(cacheKey, info)
		return info, nil
	}

	return fallbackTeamInfo(teamName), fmt.Errorf("teams: no team matching %q", teamName)
}

type espnInjuriesResponse struct {
	Injuries []struct {
		Athlete struct {
			DisplayName string `json:"displayName"`
		} `json:"athlete"`
		Team struct {
			DisplayName string `json:"displayName"`
		} `json:"team"`
		Injury         string `json:"injury"`
		Status         string `json:"status"`
		ExpectedReturn string `json:"expectedReturn"`
	} `json:"injuries"`
}

// InjuryReport returns the current league injury list.
func (c *Client) InjuryReport(ctx context.Context) ([]Injury, error) {
	const cacheKey = "injury-report"
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.([]Injury), nil
	}

	var resp espnInjuriesResponse
	if err := c.getJSON(ctx, c.siteBase+"/injuries", &resp); err != nil {
		slog.Warn("injuries fetch failed", "error", err)
		return fallbackInjuries(), err
	}

	injuries := make([]Injury, 0, len(resp.Injuries))
	for _, entry := range resp.Injuries {
		inj := Injury{
			Player:         entry.Athlete.DisplayName,
			Team:           entry.Team.DisplayName,
			Injury:         entry.Injury,
			Status:         entry.Status,
			ExpectedReturn: entry.ExpectedReturn,
		}
		if inj.Player == "" {
			inj.Player = "Unknown"
		}
		if inj.Team == "" {
			inj.Team = "Unknown"
		}
		if inj.Injury == "" {
			inj.Injury = "Unknown"
		}
		if inj.Status == "" {
			inj.Status = "Unknown"
		}
		if inj.ExpectedReturn == "" {
			inj.ExpectedReturn = "TBD"
		}
		injuries = append(injuries, inj)
	}

	c.setCached(cacheKey, injuries)
	return injuries, nil
}

type espnNewsResponse struct {
	Articles []struct {
		Headline    string `json:"headline"`
		Description string `json:"description"`
		Published   string `json:"published"`
		Links       struct {
			Web struct {
				Href string `json:"href"`
			} `json:"web"`
		} `json:"links"`
	} `json:"articles"`
}

const maxNewsItems = 10

// News returns the latest league headlines.
func (c *Client) News(ctx context.Context) ([]NewsItem, error) {
	const cacheKey = "nba-news"
	if cached, ok := c.getCached(cacheKey); ok {
		return cached.([]NewsItem), nil
	}

	var resp espnNewsResponse
	if err := c.getJSON(ctx, c.siteBase+"/news", &resp); err != nil {
		slog.Warn("news fetch failed", "error", err)
		return fallbackNews(), err
	}

	articles := resp.Articles
	if len(articles) > maxNewsItems {
		articles = articles[:maxNewsItems]
	}
	news := make([]NewsItem, 0, len(articles))
	for _, a := range articles {
		news = append(news, NewsItem{
			Title:     a.Headline,
			Summary:   a.Description,
			URL:       a.Links.Web.Href,
			Published: a.Published,
			Source:    "ESPN",
		})
	}

	c.setCached(cacheKey, news)
	return news, nil
}
