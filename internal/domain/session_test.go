package domain

import (
	"fmt"
	"testing"
)

func TestTrimHistoryKeepsNewest(t *testing.T) {
	s := NewSessionState("test")
	for i := 0; i < 30; i++ {
		s.History = append(s.History, NewMessage(RoleUser, fmt.Sprintf("message %d", i)))
	}

	s.TrimHistory(20)

	if len(s.History) != 20 {
		t.Fatalf("Expected 20 messages after trim, got %d", len(s.History))
	}
	if s.History[0].Content != "message 10" {
		t.Errorf("Expected oldest surviving message to be 'message 10', got %q", s.History[0].Content)
	}
	if s.History[19].Content != "message 29" {
		t.Errorf("Expected newest message to be 'message 29', got %q", s.History[19].Content)
	}
}

func TestTrimHistoryNoopUnderLimit(t *testing.T) {
	s := NewSessionState("test")
	s.History = append(s.History, NewMessage(RoleUser, "hello"))

	s.TrimHistory(20)

	if len(s.History) != 1 {
		t.Errorf("Expected 1 message, got %d", len(s.History))
	}
}

func TestRecentHistory(t *testing.T) {
	s := NewSessionState("test")
	for i := 0; i < 5; i++ {
		s.History = append(s.History, NewMessage(RoleUser, fmt.Sprintf("m%d", i)))
	}

	recent := s.RecentHistory(3)
	if len(recent) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(recent))
	}
	if recent[0].Content != "m2" || recent[2].Content != "m4" {
		t.Errorf("Expected m2..m4 in order, got %q..%q", recent[0].Content, recent[2].Content)
	}

	all := s.RecentHistory(10)
	if len(all) != 5 {
		t.Errorf("Expected all 5 messages when n exceeds history, got %d", len(all))
	}
}

func TestAddTopicsOnlyGrows(t *testing.T) {
	s := NewSessionState("test")

	s.AddTopics([]string{"shooting", "defense"})
	s.AddTopics([]string{"defense", "passing"})

	want := []string{"shooting", "defense", "passing"}
	if len(s.TopicsDiscussed) != len(want) {
		t.Fatalf("Expected %d topics, got %d: %v", len(want), len(s.TopicsDiscussed), s.TopicsDiscussed)
	}
	for i, topic := range want {
		if s.TopicsDiscussed[i] != topic {
			t.Errorf("Expected topic[%d]=%q, got %q", i, topic, s.TopicsDiscussed[i])
		}
	}
}

func TestPromoteLevelWriteOnce(t *testing.T) {
	s := NewSessionState("test")

	s.PromoteLevel(LevelBeginner)
	if s.UserLevel != LevelBeginner {
		t.Fatalf("Expected beginner, got %s", s.UserLevel)
	}

	s.PromoteLevel(LevelAdvanced)
	if s.UserLevel != LevelBeginner {
		t.Errorf("Expected level to stay beginner, got %s", s.UserLevel)
	}
}

func TestPromoteLevelIgnoresUnknownAndInvalid(t *testing.T) {
	s := NewSessionState("test")

	s.PromoteLevel(LevelUnknown)
	if s.UserLevel != LevelUnknown {
		t.Errorf("Expected unknown to be a no-op, got %s", s.UserLevel)
	}

	s.PromoteLevel(UserLevel("expert"))
	if s.UserLevel != LevelUnknown {
		t.Errorf("Expected invalid level to be rejected, got %s", s.UserLevel)
	}
}
