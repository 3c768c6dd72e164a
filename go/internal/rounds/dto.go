package rounds

import (
	"time"

	"github.com/mcdev12/taprounds/go/internal/models"
)

// RoundListDTO is the JSON shape of a round in listings.
type RoundListDTO struct {
	ID              string             `json:"id"`
	Status          models.RoundStatus `json:"status"`
	CooldownStartAt time.Time          `json:"cooldownStartAt"`
	CooldownEndsAt  time.Time          `json:"cooldownEndsAt"`
	StartAt         time.Time          `json:"startAt"`
	EndAt           time.Time          `json:"endAt"`
	TotalPoints     int64              `json:"totalPoints"`
	TimeUntilStart  *int64             `json:"timeUntilStart"`
	TimeRemaining   *int64             `json:"timeRemaining"`
}

// RoundDetailDTO adds participant data to RoundListDTO.
type RoundDetailDTO struct {
	RoundListDTO
	Winner      *WinnerDTO       `json:"winner,omitempty"`
	MyStats     *MyStatsDTO      `json:"myStats,omitempty"`
	Leaderboard []ParticipantDTO `json:"leaderboard"`
}

type ParticipantDTO struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	TapCount int64  `json:"tapCount"`
}

type WinnerDTO struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

type MyStatsDTO struct {
	TapCount int64 `json:"tapCount"`
	Score    int64 `json:"score"`
}

// TapResponseDTO is returned from the tap endpoint.
type TapResponseDTO struct {
	TapCount         int64 `json:"tapCount"`
	Score            int64 `json:"score"`
	RoundTotalPoints int64 `json:"roundTotalPoints"`
}

// CreateRoundBody is the body of POST /api/rounds.
type CreateRoundBody struct {
	StartDelaySeconds *float64 `json:"startDelaySeconds,omitempty"`
}

// TapBody is the body of POST /api/rounds/{id}/tap.
type TapBody struct {
	TapCount *int64 `json:"tapCount"`
	Score    *int64 `json:"score"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Conversion helpers

func roundViewToListDTO(v RoundView) RoundListDTO {
	return RoundListDTO{
		ID:              v.Round.ID.String(),
		Status:          v.Phase,
		CooldownStartAt: v.Round.CooldownStartAt.UTC(),
		CooldownEndsAt:  v.Round.StartAt.UTC(),
		StartAt:         v.Round.StartAt.UTC(),
		EndAt:           v.Round.EndAt.UTC(),
		TotalPoints:     v.TotalPoints,
		TimeUntilStart:  v.TimeUntilStart,
		TimeRemaining:   v.TimeRemaining,
	}
}

// roundDetailToDTO maps a detail for viewer. Observers always see their own score as 0;
// stored values are never touched.
func roundDetailToDTO(d RoundDetail, viewer *models.User) RoundDetailDTO {
	dto := RoundDetailDTO{
		RoundListDTO: roundViewToListDTO(d.RoundView),
		Leaderboard:  make([]ParticipantDTO, 0, len(d.Leaderboard)),
	}

	for _, p := range d.Leaderboard {
		dto.Leaderboard = append(dto.Leaderboard, ParticipantDTO{
			UserID:   p.UserID.String(),
			Username: p.Username,
			Score:    p.Score,
			TapCount: p.TapCount,
		})
	}

	if d.Winner != nil {
		dto.Winner = &WinnerDTO{
			UserID:   d.Winner.UserID.String(),
			Username: d.Winner.Username,
			Score:    d.Winner.Score,
		}
	}

	if d.Me != nil {
		dto.MyStats = &MyStatsDTO{
			TapCount: d.Me.TapCount,
			Score:    redactScore(d.Me.Score, viewer),
		}
	}

	return dto
}

func tapResultToDTO(r TapResult, viewer *models.User) TapResponseDTO {
	return TapResponseDTO{
		TapCount:         r.TapCount,
		Score:            redactScore(r.Score, viewer),
		RoundTotalPoints: r.RoundTotalPoints,
	}
}

func redactScore(score int64, viewer *models.User) int64 {
	if viewer != nil && viewer.IsObserver() {
		return 0
	}
	return score
}
