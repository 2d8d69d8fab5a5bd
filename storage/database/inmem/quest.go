package inmemdb

import (
	"context"
	"strings"

	"github.com/edurpg/edurpg/core"
	"github.com/edurpg/edurpg/core/quest"
)

var difficultyOrder = map[quest.Difficulty]int{
	quest.DifficultyEasy:      1,
	quest.DifficultyMedium:    2,
	quest.DifficultyHard:      3,
	quest.DifficultyEpic:      4,
	quest.DifficultyLegendary: 5,
}

type questRepository struct {
	db *DB
}

var _ quest.Repository = (*questRepository)(nil)

func NewQuestRepository(db *DB) *questRepository {
	return &questRepository{db: db}
}

func (repo *questRepository) CreateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		q.ID = newID()
		t.quests[q.ID] = q
		return nil
	})
	return q, err
}

func (repo *questRepository) GetQuest(ctx context.Context, id string) (quest.Quest, error) {
	var q quest.Quest
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if q, ok = t.quests[id]; !ok {
			return quest.ErrNotFound
		}
		return nil
	})
	return q, err
}

func matchQuest(q quest.Quest, filter quest.QueryFilter) bool {
	switch {
	case filter.IDs != nil && !inSlice(filter.IDs, q.ID),
		filter.Search != "" && !contains(q.Title, filter.Search) && !contains(q.Description, filter.Search),
		filter.Category != "" && !strings.EqualFold(q.Category, filter.Category),
		filter.Difficulty != "" && q.Difficulty != filter.Difficulty,
		filter.Status != "" && q.Status != filter.Status,
		filter.GuildID != "" && q.GuildID != filter.GuildID,
		filter.MaxLevel > 0 && q.RequiredLevel > filter.MaxLevel:
		return false
	}
	return true
}

var questFields = map[string]comparer[quest.Quest]{
	"title": func(a, b quest.Quest) int { return strings.Compare(a.Title, b.Title) },
	"difficulty": func(a, b quest.Quest) int {
		return cmpInt(difficultyOrder[a.Difficulty], difficultyOrder[b.Difficulty])
	},
	"required_level": func(a, b quest.Quest) int { return cmpInt(a.RequiredLevel, b.RequiredLevel) },
	"xp_reward":      func(a, b quest.Quest) int { return cmpInt(a.XPReward, b.XPReward) },
	"money_reward":   func(a, b quest.Quest) int { return cmpInt(a.MoneyReward, b.MoneyReward) },
	"created_at":     func(a, b quest.Quest) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *questRepository) QueryQuests(ctx context.Context, filter quest.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]quest.Quest, error) {
	var res []quest.Quest
	err := repo.db.read(ctx, func(t *tables) error {
		for _, q := range t.quests {
			if matchQuest(q, filter) {
				res = append(res, q)
			}
		}
		return nil
	})
	orderBy(res, ordering, questFields, func(a, b quest.Quest) bool { return a.CreatedAt.After(b.CreatedAt) })
	return paginate(res, page), err
}

func (repo *questRepository) UpdateQuest(ctx context.Context, q quest.Quest) (quest.Quest, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		orig, ok := t.quests[q.ID]
		if !ok {
			return quest.ErrNotFound
		}
		q.CreatedBy = orig.CreatedBy
		q.CreatedAt = orig.CreatedAt
		t.quests[q.ID] = q
		return nil
	})
	return q, err
}

func (repo *questRepository) DeleteQuest(ctx context.Context, id string) error {
	return repo.db.write(ctx, func(t *tables) error {
		if _, ok := t.quests[id]; !ok {
			return quest.ErrNotFound
		}
		delete(t.quests, id)
		for k, p := range t.questProgress {
			if p.QuestID == id {
				delete(t.questProgress, k)
			}
		}
		return nil
	})
}

func (repo *questRepository) GetProgress(ctx context.Context, questID, userID string) (quest.Progress, error) {
	var p quest.Progress
	err := repo.db.read(ctx, func(t *tables) error {
		var ok bool
		if p, ok = t.questProgress[key(questID, userID)]; !ok {
			return quest.ErrProgressNotFound
		}
		return nil
	})
	return p, err
}

func (repo *questRepository) SaveProgress(ctx context.Context, p quest.Progress) (quest.Progress, error) {
	err := repo.db.write(ctx, func(t *tables) error {
		k := key(p.QuestID, p.UserID)
		if orig, ok := t.questProgress[k]; ok {
			p.ID = orig.ID
		} else if p.ID == "" {
			p.ID = newID()
		}
		t.questProgress[k] = p
		return nil
	})
	return p, err
}

func (repo *questRepository) QueryUserProgress(ctx context.Context, userID string, status quest.ProgressStatus) ([]quest.Progress, error) {
	var res []quest.Progress
	err := repo.db.read(ctx, func(t *tables) error {
		for _, p := range t.questProgress {
			if p.UserID == userID && (status == "" || p.Status == status) {
				res = append(res, p)
			}
		}
		return nil
	})
	orderBy(res, nil, nil, func(a, b quest.Progress) bool { return a.UpdatedAt.After(b.UpdatedAt) })
	return res, err
}
