package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/programme-lv/streaks/domain"
)

func (s *Store) GetProblem(ctx context.Context, slug string) (*domain.ProblemMetadata, error) {
	var p domain.ProblemMetadata
	err := s.pool.QueryRow(ctx, `
		SELECT title_slug, question_id, title, difficulty, topic_tags, ac_rate,
			likes, dislikes, is_paid_only, last_fetched_at
		FROM problem_metadata WHERE title_slug = $1
	`, slug).Scan(
		&p.TitleSlug,
		&p.QuestionID,
		&p.Title,
		&p.Difficulty,
		&p.TopicTags,
		&p.AcRate,
		&p.Likes,
		&p.Dislikes,
		&p.IsPaidOnly,
		&p.LastFetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query problem %s: %w", slug, err)
	}
	return &p, nil
}

func (s *Store) UpsertProblem(ctx context.Context, p domain.ProblemMetadata) error {
	tags := p.TopicTags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO problem_metadata (title_slug, question_id, title, difficulty, topic_tags,
			ac_rate, likes, dislikes, is_paid_only, last_fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (title_slug) DO UPDATE
		SET question_id = EXCLUDED.question_id,
			title = EXCLUDED.title,
			difficulty = EXCLUDED.difficulty,
			topic_tags = EXCLUDED.topic_tags,
			ac_rate = EXCLUDED.ac_rate,
			likes = EXCLUDED.likes,
			dislikes = EXCLUDED.dislikes,
			is_paid_only = EXCLUDED.is_paid_only,
			last_fetched_at = EXCLUDED.last_fetched_at
	`,
		p.TitleSlug,
		p.QuestionID,
		p.Title,
		p.Difficulty,
		tags,
		p.AcRate,
		p.Likes,
		p.Dislikes,
		p.IsPaidOnly,
		p.LastFetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert problem %s: %w", p.TitleSlug, err)
	}
	return nil
}
