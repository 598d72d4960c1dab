package model

import "time"

// CatalogItem is something members can spend points on.
type CatalogItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cost      int       `json:"cost"`
	Emoji     string    `json:"emoji"`
	ImageRef  string    `json:"image_ref"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type RewardState string

const (
	RewardPending   RewardState = "pending"
	RewardCollected RewardState = "collected"
)

// Reward is a voucher created when a member redeems a catalog item. It moves
// from pending to collected exactly once.
type Reward struct {
	ID          string     `json:"id"`
	MemberID    string     `json:"member_id"`
	Item        string     `json:"item"`
	Cost        int        `json:"cost"`
	Emoji       string     `json:"emoji"`
	ImageRef    string     `json:"image_ref"`
	RedeemCode  string     `json:"redeem_code"`
	Collected   bool       `json:"collected"`
	CollectedBy *string    `json:"collected_by"`
	CollectedAt *time.Time `json:"collected_at"`
	CreatedAt   time.Time  `json:"timestamp"`
}

func (r Reward) State() RewardState {
	if r.Collected {
		return RewardCollected
	}
	return RewardPending
}
