package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DiceGame is a dice_games history row. Roll and rate are stored as
// hundredths (roll 52.41 -> 5241) so no float reaches the database.
type DiceGame struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"userId"`
	Hash       string    `json:"hash"`
	ClientSeed string    `json:"clientSeed"`
	Nonce      int64     `json:"nonce"`
	Amount     int64     `json:"amount"`
	ChanceBP   int64     `json:"chanceBp"` // chance in hundredths of a percent
	Direction  string    `json:"direction"`
	RollBP     int64     `json:"rollBp"`
	RateBP     int64     `json:"rateBp"`
	Payout     int64     `json:"payout"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CrashRound is a crash_rounds history row.
type CrashRound struct {
	ID           uuid.UUID       `json:"id"`
	Hash         string          `json:"hash"`
	CrashPointBP int64           `json:"crashPointBp"` // multiplier in hundredths
	Bets         json.RawMessage `json:"bets"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// WheelRound is a wheel_rounds history row.
type WheelRound struct {
	ID          uuid.UUID       `json:"id"`
	Hash        string          `json:"hash"`
	ResultColor string          `json:"resultColor"`
	Angle       int64           `json:"angle"`
	Bets        json.RawMessage `json:"bets"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// JackpotRound is a jackpot_rounds history row.
type JackpotRound struct {
	ID           uuid.UUID       `json:"id"`
	Room         string          `json:"room"`
	Hash         string          `json:"hash"`
	WinnerUserID uuid.UUID       `json:"winnerUserId"`
	WinnerTicket int64           `json:"winnerTicket"`
	TotalTickets int64           `json:"totalTickets"`
	Pot          int64           `json:"pot"`
	Payout       int64           `json:"payout"`
	Bets         json.RawMessage `json:"bets"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// BattleRound is a battle_rounds history row.
type BattleRound struct {
	ID           uuid.UUID       `json:"id"`
	Hash         string          `json:"hash"`
	WinnerTeam   string          `json:"winnerTeam"`
	WinnerTicket int64           `json:"winnerTicket"`
	TotalBank    int64           `json:"totalBank"`
	Bets         json.RawMessage `json:"bets"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CoinflipStatus enumerates coinflip game states.
type CoinflipStatus string

const (
	CoinflipOpen     CoinflipStatus = "open"
	CoinflipResolved CoinflipStatus = "resolved"
	CoinflipCanceled CoinflipStatus = "canceled"
)

// CoinflipGame is a coinflip_games row. Unlike the round history tables it is
// mutable: a game is open until a second player joins.
type CoinflipGame struct {
	ID            uuid.UUID      `json:"id"`
	Hash          string         `json:"hash"`
	CreatorID     uuid.UUID      `json:"creatorId"`
	CreatorName   string         `json:"creatorName"`
	CreatorSide   string         `json:"creatorSide"`
	JoinerID      *uuid.UUID     `json:"joinerId,omitempty"`
	JoinerName    *string        `json:"joinerName,omitempty"`
	Amount        int64          `json:"amount"`
	CreatorEnd    int64          `json:"creatorEnd"` // creator ticket range is [1, creatorEnd]
	JoinerEnd     int64          `json:"joinerEnd"`
	WinnerTicket  int64          `json:"winnerTicket"`
	WinnerUserID  *uuid.UUID     `json:"winnerUserId,omitempty"`
	Payout        int64          `json:"payout"`
	Status        CoinflipStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// FairRecord is the result of a fair.check lookup across game history tables.
type FairRecord struct {
	Game   string          `json:"game"`
	Hash   string          `json:"hash"`
	Result json.RawMessage `json:"result"`
}

// ChatMessage is a chat_messages row.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// StaticAddress is a wallet_static_addresses row: a fixed deposit address
// assigned to one user by the crypto provider.
type StaticAddress struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	TrackID   string    `json:"trackId"`
	Currency  string    `json:"currency"`
	Network   string    `json:"network"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

// BonusSpin is a bonus_spins row.
type BonusSpin struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Prize     string    `json:"prize"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
