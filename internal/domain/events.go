package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of reward notifications.
type EventKind int

const (
	EventQuizReward EventKind = iota + 1
	EventAchievement
	EventNewChapter
	EventBalanceReconciled
)

func (k EventKind) String() string {
	switch k {
	case EventQuizReward:
		return "quiz_reward"
	case EventAchievement:
		return "achievement"
	case EventNewChapter:
		return "new_chapter"
	case EventBalanceReconciled:
		return "balance_reconciled"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind is the inverse of String.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range []EventKind{EventQuizReward, EventAchievement, EventNewChapter, EventBalanceReconciled} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RewardEvent is what the notification sink receives.
type RewardEvent struct {
	Kind       EventKind        `json:"kind"`
	UserID     string           `json:"userId"`
	QuizID     string           `json:"quizId,omitempty"`
	Tokens     int              `json:"tokensAwarded"`
	NFTAwarded bool             `json:"nftAwarded"`
	NFTID      string           `json:"nftId,omitempty"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
}

// QuizRewardEvent reports a committed quiz reward.
func QuizRewardEvent(userID, quizID string, result RewardResult, nftID string, balance decimal.Decimal) RewardEvent {
	return RewardEvent{
		Kind:       EventQuizReward,
		UserID:     userID,
		QuizID:     quizID,
		Tokens:     result.Tokens,
		NFTAwarded: result.NFTAwarded,
		NFTID:      nftID,
		Balance:    &balance,
	}
}

// BalanceReconciledEvent reports a ledger overwrite by the reconciler.
func BalanceReconciledEvent(userID string, balance decimal.Decimal) RewardEvent {
	return RewardEvent{Kind: EventBalanceReconciled, UserID: userID, Balance: &balance}
}
