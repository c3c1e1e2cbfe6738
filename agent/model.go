package agent

// sqlite models

type Height struct {
	Id     uint64 `gorm:"primaryKey" json:"id"`
	Height uint64 `json:"height"`
}

type Proposal struct {
	Id            uint64 `gorm:"primaryKey" json:"id"`
	Creator       string `json:"creator"`
	Title         string `json:"title"`
	Rule          uint64 `json:"rule"`
	Privacy       uint64 `json:"privacy"`
	Registration  uint64 `json:"registration"`
	Options       uint64 `json:"options"`
	State         uint64 `json:"state"`
	CreateHeight  uint64 `json:"create_height"`
	UpdateHeight  uint64 `json:"update_height"`
	Revealed      bool   `json:"revealed"`
	Passed        bool   `json:"passed"`
	WinningOption uint64 `json:"winning_option"`
	Margin        uint64 `json:"margin"`
	TotalVotes    uint64 `json:"total_votes"`
	Counts        string `json:"counts"`
}

const (
	RegistrationPending    = "pending"
	RegistrationApproved   = "approved"
	RegistrationRejected   = "rejected"
	RegistrationRegistered = "registered"
)

type Registration struct {
	Id          uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Proposal    uint64 `gorm:"index" json:"proposal"`
	Voter       string `gorm:"index" json:"voter"`
	Status      string `json:"status"`
	WeightGroup uint64 `json:"weight_group"`
	Weight      uint64 `json:"weight"`
	Commitment  string `json:"commitment,omitempty"`
	Member      int64  `json:"member"`
	Height      uint64 `json:"height"`
}

// Vote is one cast ballot; anonymous ballots carry a nullifier and no voter.
type Vote struct {
	Id        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Proposal  uint64 `gorm:"index" json:"proposal"`
	Voter     string `json:"voter,omitempty"`
	Nullifier string `json:"nullifier,omitempty"`
	Choice    string `json:"choice"`
	Weight    uint64 `json:"weight"`
	Height    uint64 `json:"height"`
}

type StateChange struct {
	Id       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Proposal uint64 `gorm:"index" json:"proposal"`
	Old      uint64 `json:"old"`
	New      uint64 `json:"new"`
	Height   uint64 `json:"height"`
}

type ConfigChange struct {
	Id       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Proposal uint64 `gorm:"index" json:"proposal"`
	Field    string `json:"field"`
	Detail   string `json:"detail"`
	Height   uint64 `json:"height"`
}
