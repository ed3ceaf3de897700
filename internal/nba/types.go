// Package nba fetches live basketball data from public providers.
package nba

// TeamStanding is one row of a conference table.
type TeamStanding struct {
	Rank        int     `json:"rank"`
	Team        string  `json:"team"`
	Record      string  `json:"record"`
	GamesBehind float64 `json:"gamesBehind"`
}

// Standings holds both conference tables.
type Standings struct {
	Eastern []TeamStanding `json:"eastern"`
	Western []TeamStanding `json:"western"`
}

// Game is a normalized scoreboard entry.
type Game struct {
	ID        string `json:"id"`
	Home      string `json:"home"`
	Away      string `json:"away"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	HomeScore string `json:"homeScore,omitempty"`
	AwayScore string `json:"awayScore,omitempty"`
	Venue     string `json:"venue"`
}

// PlayerStats is a normalized per-player season stat line.
type PlayerStats struct {
	Name     string  `json:"name"`
	Team     string  `json:"team"`
	Position string  `json:"position"`
	Season   string  `json:"season"`
	Games    float64 `json:"games"`
	Points   float64 `json:"points"`
	Rebounds float64 `json:"rebounds"`
	Assists  float64 `json:"assists"`
	Steals   float64 `json:"steals"`
	Blocks   float64 `json:"blocks"`
	FGPct    float64 `json:"fieldGoalPercentage"`
	ThreePct float64 `json:"threePointPercentage"`
	FTPct    float64 `json:"freeThrowPercentage"`
	Minutes  float64 `json:"minutes"`
}

// TeamInfo is a normalized franchise record.
type TeamInfo struct {
	Name          string `json:"name"`
	Abbreviation  string `json:"abbreviation"`
	City          string `json:"city"`
	Arena         string `json:"arena"`
	Founded       string `json:"founded"`
	Championships int    `json:"championships"`
}

// Injury is one entry of the league injury report.
type Injury struct {
	Player         string `json:"player"`
	Team           string `json:"team"`
	Injury         string `json:"injury"`
	Status         string `json:"status"`
	ExpectedReturn string `json:"expectedReturn"`
}

// NewsItem is a normalized headline.
type NewsItem struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	URL       string `json:"url"`
	Published string `json:"published"`
	Source    string `json:"source"`
}

const currentSeason = "2025-26"

// Fallback values returned when a provider call fails. Every field is
// populated so callers never see a partial record.

func fallbackStandings() Standings {
	return Standings{Eastern: []TeamStanding{}, Western: []TeamStanding{}}
}

func fallbackGames() []Game {
	return []Game{}
}

func fallbackPlayerStats(name string) PlayerStats {
	return PlayerStats{
		Name:     name,
		Team:     "Unknown",
		Position: "Unknown",
		Season:   currentSeason,
	}
}

func fallbackTeamInfo(name string) TeamInfo {
	return TeamInfo{
		Name:         name,
		Abbreviation: "UNK",
		City:         "Unknown",
		Arena:        "Unknown",
		Founded:      "Unknown",
	}
}

func fallbackInjuries() []Injury {
	return []Injury{}
}

func fallbackNews() []NewsItem {
	return []NewsItem{}
}
