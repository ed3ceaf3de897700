// Package intent classifies chat messages into coarse sports-data
// categories using fixed keyword lists. All functions are pure.
package intent

import (
	"strings"

	"github.com/courtside/courtside/internal/domain"
)

// Category describes what kind of sports data a message asks about.
type Category string

// Known categories.
const (
	CategoryPlayer  Category = "player"
	CategoryTeam    Category = "team"
	CategoryGame    Category = "game"
	CategoryInjury  Category = "injury"
	CategoryNews    Category = "news"
	CategoryGeneral Category = "general"
)

// categoryKeywords drives Classify. Matching is substring OR within a
// category; categories have no precedence among each other.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryPlayer, []string{"player", "stats", "statistics"}},
	{CategoryTeam, []string{"team", "standings", "rank"}},
	{CategoryGame, []string{"game", "schedule", "matchup"}},
	{CategoryInjury, []string{"injury", "hurt", "injured"}},
	{CategoryNews, []string{"news", "rumor", "trade"}},
}

// Classify maps a message to the set of matching categories. Every matched
// category is returned; a message with no matches yields {general}.
func Classify(message string) []Category {
	lower := strings.ToLower(message)

	var matched []Category
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, entry.category)
				break
			}
		}
	}

	if len(matched) == 0 {
		return []Category{CategoryGeneral}
	}
	return matched
}

// Contains reports whether cats includes c.
func Contains(cats []Category, c Category) bool {
	for _, cat := range cats {
		if cat == c {
			return true
		}
	}
	return false
}

// playerAliases maps name fragments to canonical lowercase player names.
// Order matters: first match wins.
var playerAliases = []struct {
	fragments []string
	canonical string
}{
	{[]string{"lebron", "james"}, "lebron james"},
	{[]string{"curry", "stephen"}, "stephen curry"},
	{[]string{"giannis", "antetokounmpo"}, "giannis antetokounmpo"},
	{[]string{"luka", "doncic"}, "luka doncic"},
	{[]string{"jayson", "tatum"}, "jayson tatum"},
}

// ResolvePlayer finds a known player mentioned in the message and returns
// the canonical name. Returns false when no known player is recognized.
func ResolvePlayer(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, alias := range playerAliases {
		for _, frag := range alias.fragments {
			if strings.Contains(lower, frag) {
				return alias.canonical, true
			}
		}
	}
	return "", false
}

var beginnerKeywords = []string{
	"what is", "how do i", "basics", "basic", "beginner",
	"just started", "new to", "learning", "simple",
}

var advancedKeywords = []string{
	"horns set", "pick and roll coverage", "drop coverage",
	"hedge", "ice", "blue", "pnr", "offensive scheme",
	"defensive rotations", "help side", "weak side",
}

// DetectLevel infers a knowledge level from the message. When current is
// already known the current value is returned unchanged.
func DetectLevel(message string, current domain.UserLevel) domain.UserLevel {
	if current != domain.LevelUnknown {
		return current
	}

	lower := strings.ToLower(message)
	for _, kw := range advancedKeywords {
		if strings.Contains(lower, kw) {
			return domain.LevelAdvanced
		}
	}
	for _, kw := range beginnerKeywords {
		if strings.Contains(lower, kw) {
			return domain.LevelBeginner
		}
	}
	return domain.LevelIntermediate
}

// topicKeywords drives ExtractTopics.
var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"shooting", []string{"shoot", "shooting", "shot", "three point", "free throw", "jumper"}},
	{"defense", []string{"defense", "defending", "guard", "block", "steal"}},
	{"passing", []string{"pass", "passing", "assist", "ball movement"}},
	{"dribbling", []string{"dribble", "dribbling", "handle", "crossover"}},
	{"rebounding", []string{"rebound", "rebounding", "box out"}},
	{"strategy", []string{"strategy", "play", "offense", "set", "scheme"}},
	{"rules", []string{"rule", "foul", "violation", "technical", "traveling"}},
	{"positions", []string{"point guard", "shooting guard", "center", "forward", "position"}},
	{"training", []string{"train", "drill", "practice", "workout", "improve"}},
}

// ExtractTopics returns the discussion topics mentioned in the message.
func ExtractTopics(message string) []string {
	lower := strings.ToLower(message)

	var topics []string
	for _, entry := range topicKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, entry.topic)
				break
			}
		}
	}
	return topics
}
