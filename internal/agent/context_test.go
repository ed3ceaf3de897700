package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/courtside/courtside/internal/domain"
	"github.com/courtside/courtside/internal/intent"
	"github.com/courtside/courtside/internal/nba"
)

// fakeSports implements SportsClient with switchable failures.
type fakeSports struct {
	mu          sync.Mutex
	failAll     bool
	failPlayer  bool
	playerCalls int
	gamesCalls  int
}

var errProvider = errors.New("provider unavailable")

func (f *fakeSports) Standings(ctx context.Context) (nba.Standings, error) {
	if f.failAll {
		return nba.Standings{Eastern: []nba.TeamStanding{}, Western: []nba.TeamStanding{}}, errProvider
	}
	return nba.Standings{
		Eastern: []nba.TeamStanding{{Rank: 1, Team: "Boston Celtics", Record: "40-12"}},
		Western: []nba.TeamStanding{{Rank: 1, Team: "Oklahoma City Thunder", Record: "42-10"}},
	}, nil
}

func (f *fakeSports) TodaysGames(ctx context.Context) ([]nba.Game, error) {
	f.mu.Lock()
	f.gamesCalls++
	f.mu.Unlock()
	if f.failAll {
		return []nba.Game{}, errProvider
	}
	return []nba.Game{{ID: "1", Home: "Los Angeles Lakers", Away: "Boston Celtics", Status: "STATUS_FINAL"}}, nil
}

func (f *fakeSports) PlayerStats(ctx context.Context, playerName string) (nba.PlayerStats, error) {
	f.mu.Lock()
	f.playerCalls++
	f.mu.Unlock()
	if f.failAll || f.failPlayer {
		return nba.PlayerStats{Name: playerName, Team: "Unknown", Position: "Unknown", Season: "2025-26"}, errProvider
	}
	return nba.PlayerStats{
		Name: "LeBron James", Team: "Los Angeles Lakers", Position: "F",
		Season: "2025-26", Games: 55, Points: 25.4, Rebounds: 7.2, Assists: 8.1,
	}, nil
}

func (f *fakeSports) InjuryReport(ctx context.Context) ([]nba.Injury, error) {
	if f.failAll {
		return []nba.Injury{}, errProvider
	}
	return []nba.Injury{{Player: "Some Player", Team: "Miami Heat", Status: "Out", Injury: "Ankle", ExpectedReturn: "TBD"}}, nil
}

func (f *fakeSports) News(ctx context.Context) ([]nba.NewsItem, error) {
	if f.failAll {
		return []nba.NewsItem{}, errProvider
	}
	return []nba.NewsItem{{Title: "Trade deadline recap", Source: "ESPN"}}, nil
}

func TestAssembleContextFetchesMatchedCategories(t *testing.T) {
	sports := &fakeSports{}
	cats := []intent.Category{intent.CategoryPlayer, intent.CategoryGame}

	data := AssembleContext(context.Background(), sports, "lebron james stats before the game", cats)

	if data.Err != "" {
		t.Errorf("Expected no error context, got %q", data.Err)
	}
	if data.Player == nil || data.Player.Name != "LeBron James" {
		t.Errorf("Expected player stats, got %+v", data.Player)
	}
	if len(data.Games) != 1 {
		t.Errorf("Expected 1 game, got %+v", data.Games)
	}
	if data.Standings != nil || data.Injuries != nil || data.News != nil {
		t.Error("Expected unmatched categories to stay unfetched")
	}
}

func TestAssembleContextAllFailed(t *testing.T) {
	sports := &fakeSports{failAll: true}
	cats := []intent.Category{intent.CategoryTeam, intent.CategoryNews}

	data := AssembleContext(context.Background(), sports, "standings and news", cats)

	if data.Err == "" {
		t.Error("Expected error context when every fetch fails")
	}
	// Fallback shapes must still be total.
	if data.Standings == nil || data.News == nil {
		t.Errorf("Expected fallback values to be present, got %+v", data)
	}
}

func TestAssembleContextPartialFailureIsNotError(t *testing.T) {
	sports := &fakeSports{failPlayer: true}
	cats := []intent.Category{intent.CategoryPlayer, intent.CategoryGame}

	data := AssembleContext(context.Background(), sports, "lebron stats and tonight's game", cats)

	if data.Err != "" {
		t.Errorf("Expected partial failure to not be error-shaped, got %q", data.Err)
	}
	if data.Player == nil || data.Player.Team != "Unknown" {
		t.Errorf("Expected fallback player record, got %+v", data.Player)
	}
}

func TestAssembleContextSkipsUnknownPlayer(t *testing.T) {
	sports := &fakeSports{}
	cats := []intent.Category{intent.CategoryPlayer}

	data := AssembleContext(context.Background(), sports, "who is the best player ever", cats)

	if sports.playerCalls != 0 {
		t.Errorf("Expected no player fetch for unrecognized name, got %d", sports.playerCalls)
	}
	if data.Player != nil {
		t.Errorf("Expected nil player, got %+v", data.Player)
	}
	if data.Err != "" {
		t.Errorf("Expected skip to not count as failure, got %q", data.Err)
	}
}

func TestDigestSummarizesCategories(t *testing.T) {
	sports := &fakeSports{}
	cats := []intent.Category{intent.CategoryPlayer, intent.CategoryTeam}

	data := AssembleContext(context.Background(), sports, "lebron stats and standings", cats)
	digest := data.Digest()

	if !strings.Contains(digest, "LeBron James") {
		t.Errorf("Expected player line in digest: %q", digest)
	}
	if !strings.Contains(digest, "Boston Celtics") || !strings.Contains(digest, "Oklahoma City Thunder") {
		t.Errorf("Expected conference leaders in digest: %q", digest)
	}
}

func TestDigestErrorShape(t *testing.T) {
	data := &ContextData{Err: "live sports data is currently unavailable"}
	digest := data.Digest()
	if !strings.Contains(digest, "live sports data is currently unavailable") {
		t.Errorf("Expected unavailability note, got %q", digest)
	}
}

func TestDigestEmpty(t *testing.T) {
	data := &ContextData{Intents: []intent.Category{intent.CategoryGeneral}}
	if got := data.Digest(); got != "No specific data available" {
		t.Errorf("Expected placeholder digest, got %q", got)
	}
}

func TestBuildMessagesShape(t *testing.T) {
	state := domain.NewSessionState("s1")
	state.UserLevel = domain.LevelBeginner
	state.MessageCount = 4
	for i := 0; i < 15; i++ {
		state.History = append(state.History, domain.NewMessage(domain.RoleUser, "old question"))
	}

	data := &ContextData{Intents: []intent.Category{intent.CategoryGeneral}}
	messages := BuildMessages(state, data, "what is a rebound?")

	// system + last 10 history + current user turn
	if len(messages) != 12 {
		t.Fatalf("Expected 12 messages, got %d", len(messages))
	}
	if messages[0].Role != domain.RoleSystem {
		t.Errorf("Expected system prompt first, got %s", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, "beginner") {
		t.Errorf("Expected user level in system prompt: %q", messages[0].Content)
	}
	last := messages[len(messages)-1]
	if last.Role != domain.RoleUser || !strings.Contains(last.Content, "what is a rebound?") {
		t.Errorf("Expected literal question in final user turn, got %+v", last)
	}
}
