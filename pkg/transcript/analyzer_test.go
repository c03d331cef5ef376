package transcript

import (
	"reflect"
	"strings"
	"testing"

	"scamshield/pkg/risk"
)

func TestKeywordScoring(t *testing.T) {
	a := NewAnalyzer()

	input := []byte("Alice: wire the funds now\nBob: guaranteed profit")
	got, stats := a.Analyze(input)

	wantKeywords := []string{"wire", "guaranteed", "profit"}
	if !reflect.DeepEqual(stats.MatchedKeywords, wantKeywords) {
		t.Fatalf("matched keywords = %v, want %v", stats.MatchedKeywords, wantKeywords)
	}
	if got.Score != 60 {
		t.Fatalf("score = %d, want 60", got.Score)
	}
	if got.Level != risk.LevelMedium {
		t.Fatalf("level = %s, want MEDIUM", got.Level)
	}
	if stats.ParticipantCount != 2 {
		t.Fatalf("participants = %d, want 2", stats.ParticipantCount)
	}
	if stats.MessageCount != 2 {
		t.Fatalf("messages = %d, want 2", stats.MessageCount)
	}
}

func TestDeterminism(t *testing.T) {
	a := NewAnalyzer()
	input := []byte("Eve: urgent, send crypto to my wallet\nMallory: otp please")

	first, _ := a.Analyze(input)
	for i := 0; i < 10; i++ {
		again, _ := a.Analyze(input)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged: %+v vs %+v", i, first, again)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	a := NewAnalyzer()
	got, stats := a.Analyze(nil)

	if got.Score != 0 || got.Level != risk.LevelLow {
		t.Fatalf("empty transcript scored %d/%s", got.Score, got.Level)
	}
	if stats.ParticipantCount != 0 || stats.MessageCount != 0 {
		t.Fatalf("empty transcript counted stats %+v", stats)
	}
}

func TestNonEmptyContentNeverScoresZero(t *testing.T) {
	a := NewAnalyzer()
	got, _ := a.Analyze([]byte("hello there\nhow are you"))
	if got.Score != 15 {
		t.Fatalf("benign non-empty transcript score = %d, want floor 15", got.Score)
	}
	if got.Level != risk.LevelLow {
		t.Fatalf("level = %s, want LOW", got.Level)
	}
}

func TestLineCountBonus(t *testing.T) {
	a := NewAnalyzer()

	long101 := strings.Repeat("line of text\n", 101)
	got, _ := a.Analyze([]byte(long101))
	if got.Score != 10 {
		t.Fatalf("101-line benign transcript score = %d, want 10", got.Score)
	}

	long201 := strings.Repeat("line of text\n", 201)
	got, _ = a.Analyze([]byte(long201))
	if got.Score != 20 {
		t.Fatalf("201-line benign transcript score = %d, want 20", got.Score)
	}
}

func TestScoreIsClamped(t *testing.T) {
	a := NewAnalyzer()
	text := strings.Repeat("urgent wire transfer crypto guaranteed profit password otp wallet investment giveaway verify prize lottery\n", 250)
	got, _ := a.Analyze([]byte(text))
	if got.Score != 100 {
		t.Fatalf("score = %d, want clamp at 100", got.Score)
	}
	if got.Level != risk.LevelHigh {
		t.Fatalf("level = %s, want HIGH", got.Level)
	}
}

func TestUnlabeledLinesCountOneParticipant(t *testing.T) {
	a := NewAnalyzer()
	_, stats := a.Analyze([]byte("just some text\nwith no labels"))
	if stats.ParticipantCount != 1 {
		t.Fatalf("participants = %d, want 1 for unlabeled content", stats.ParticipantCount)
	}
}

func TestLongNamesAreNotParticipants(t *testing.T) {
	a := NewAnalyzer()
	name := strings.Repeat("x", 65)
	_, stats := a.Analyze([]byte(name + ": hi"))
	if stats.ParticipantCount != 1 {
		// Falls back to the single implicit participant.
		t.Fatalf("participants = %d, want 1", stats.ParticipantCount)
	}
}
