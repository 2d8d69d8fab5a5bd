package guild

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edurpg/edurpg/core"
)

const (
	DefaultMaxMembers = 10
	xpPerLevel        = 1000
)

type Role string

const (
	RoleLeader  Role = "LEADER"
	RoleOfficer Role = "OFFICER"
	RoleMember  Role = "MEMBER"
)

func (r Role) rank() int {
	switch r {
	case RoleLeader:
		return 3
	case RoleOfficer:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

type BenefitType string

const (
	BenefitXPBoost      BenefitType = "XP_BOOST"
	BenefitShopDiscount BenefitType = "SHOP_DISCOUNT"
	BenefitQuestBonus   BenefitType = "QUEST_BONUS"
	BenefitMoneyBoost   BenefitType = "MONEY_BOOST"
)

// Benefit is a percentage bonus unlocked by a guild from the given level on.
type Benefit struct {
	Type     BenefitType `json:"type"`
	Value    int         `json:"value"`
	MinLevel int         `json:"min_level"`
	Unlocked bool        `json:"unlocked"`
}

var DefaultBenefits = []Benefit{
	{Type: BenefitXPBoost, Value: 5, MinLevel: 1},
	{Type: BenefitShopDiscount, Value: 5, MinLevel: 2},
	{Type: BenefitQuestBonus, Value: 10, MinLevel: 3},
	{Type: BenefitXPBoost, Value: 10, MinLevel: 5},
	{Type: BenefitMoneyBoost, Value: 15, MinLevel: 7},
	{Type: BenefitShopDiscount, Value: 10, MinLevel: 10},
}

// LevelForXP returns the guild level reached with xp.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 1
	}
	return xp/xpPerLevel + 1
}

// Benefits lists the guild benefits, flagging those unlocked at level.
func Benefits(level int) []Benefit {
	res := make([]Benefit, 0, len(DefaultBenefits))
	for _, b := range DefaultBenefits {
		b.Unlocked = level >= b.MinLevel
		res = append(res, b)
	}
	return res
}

// BenefitValue returns the highest unlocked value of the given benefit type at level.
func BenefitValue(level int, typ BenefitType) int {
	var best int
	for _, b := range DefaultBenefits {
		if b.Type == typ && level >= b.MinLevel && b.Value > best {
			best = b.Value
		}
	}
	return best
}

type Guild struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Motto       string    `json:"motto"`
	LeaderID    string    `json:"leader_id"`
	IsPublic    bool      `json:"is_public"`
	MaxMembers  int       `json:"max_members"`
	MemberCount int       `json:"member_count"`
	Level       int       `json:"level"`
	XP          int       `json:"xp"`
	Treasury    int       `json:"treasury"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (g Guild) IsFull() bool {
	return g.MemberCount >= g.MaxMembers
}

type Member struct {
	GuildID         string    `json:"guild_id"`
	UserID          string    `json:"user_id"`
	Role            Role      `json:"role"`
	ContributedXP   int       `json:"contributed_xp"`
	ContributedGold int       `json:"contributed_gold"`
	JoinedAt        time.Time `json:"joined_at"`
}

type ActivityType string

const (
	ActivityCreated        ActivityType = "CREATED"
	ActivityJoined         ActivityType = "JOINED"
	ActivityLeft           ActivityType = "LEFT"
	ActivityKicked         ActivityType = "KICKED"
	ActivityRoleChanged    ActivityType = "ROLE_CHANGED"
	ActivityDeposit        ActivityType = "DEPOSIT"
	ActivityLevelUp        ActivityType = "LEVEL_UP"
	ActivityQuestCompleted ActivityType = "QUEST_COMPLETED"
	ActivityJobCompleted   ActivityType = "JOB_COMPLETED"
)

type Activity struct {
	ID        string       `json:"id"`
	GuildID   string       `json:"guild_id"`
	UserID    string       `json:"user_id,omitempty"`
	Type      ActivityType `json:"type"`
	Message   string       `json:"message"`
	Amount    int          `json:"amount,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type Message struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Details is a guild with its members and benefits.
type Details struct {
	Guild
	Members  []Member  `json:"members"`
	Benefits []Benefit `json:"benefits"`
}

type NewGuild struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"max=500"`
	Motto       string `json:"motto" validate:"max=100"`
	IsPublic    *bool  `json:"is_public"`
	MaxMembers  int    `json:"max_members" validate:"omitempty,min=2,max=50"`
}

func (ng *NewGuild) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	ng.Description = core.CleanString(ng.Description)
	ng.Motto = core.CleanString(ng.Motto)
	return validate.Struct(ng)
}

type UpdateGuild struct {
	Description *string `json:"description" validate:"omitempty,max=500"`
	Motto       *string `json:"motto" validate:"omitempty,max=100"`
	IsPublic    *bool   `json:"is_public"`
	MaxMembers  *int    `json:"max_members" validate:"omitempty,min=2,max=50"`
}

func (ug *UpdateGuild) Validate(validate *validator.Validate) error {
	return validate.Struct(ug)
}

type QueryFilter struct {
	Search     string `query:"search"`
	PublicOnly bool   `query:"public"`
}

type NewMessage struct {
	Content string `json:"content" validate:"required,notblank,max=1000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}
