package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/pagination"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PassageRepository persists embedded post chunks and answers similarity
// queries over them.
type PassageRepository struct {
	pool *pgxpool.Pool
}

func NewPassageRepository(pool *pgxpool.Pool) *PassageRepository {
	return &PassageRepository{pool: pool}
}

// PassageID derives the deterministic row id for a chunk from its post URI
// and chunk index (UUIDv5 over the URL namespace), so re-ingesting the same
// content upserts instead of duplicating.
func PassageID(uri string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#%d", uri, index)).String()
}

// AddBatch pairs chunks with embeddings positionally and upserts each pair
// that has both a vector and non-blank text. Last write wins for a given id.
// Returns the number of rows considered, whether inserted or refreshed.
func (r *PassageRepository) AddBatch(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) (int, error) {
	added := 0
	for i, chunk := range chunks {
		if i >= len(embeddings) || embeddings[i] == nil {
			continue
		}
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}

		p := chunk.Post
		_, err := r.pool.Exec(ctx,
			`INSERT INTO passages
				(id, uri, author, author_display_name, content, embedding,
				 created_at, created_at_ts, reply_count, repost_count, like_count,
				 chunk_index, chunk_total)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				author = EXCLUDED.author,
				author_display_name = EXCLUDED.author_display_name,
				created_at = EXCLUDED.created_at,
				created_at_ts = EXCLUDED.created_at_ts,
				reply_count = EXCLUDED.reply_count,
				repost_count = EXCLUDED.repost_count,
				like_count = EXCLUDED.like_count,
				chunk_total = EXCLUDED.chunk_total`,
			PassageID(p.URI, chunk.Index),
			p.URI,
			p.Author,
			p.AuthorDisplayName,
			chunk.Text,
			pgvector.NewVector(embeddings[i]),
			p.CreatedAt.UTC(),
			float64(p.CreatedAt.UTC().Unix()),
			p.ReplyCount,
			p.RepostCount,
			p.LikeCount,
			chunk.Index,
			chunk.Total,
		)
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Query returns the k nearest passages to the query vector, ranked by
// ascending distance with ties broken by insertion order. When recentDays is
// positive only passages created within that window (inclusive) qualify; the
// caller decides whether an empty filtered result warrants an unrestricted
// retry.
func (r *PassageRepository) Query(ctx context.Context, vec []float32, k int, recentDays int) ([]domain.Passage, error) {
	if k <= 0 {
		k = 10
	}

	query := `
		SELECT id, uri, author, author_display_name, content, created_at,
		       reply_count, repost_count, like_count, chunk_index, chunk_total,
		       embedding <=> $1 AS distance
		FROM passages`
	args := []interface{}{pgvector.NewVector(vec)}

	if recentDays > 0 {
		cutoff := float64(time.Now().UTC().AddDate(0, 0, -recentDays).Unix())
		query += ` WHERE created_at_ts >= $2`
		args = append(args, cutoff)
	}

	query += fmt.Sprintf(` ORDER BY distance ASC, seq ASC LIMIT $%d`, len(args)+1)
	args = append(args, k)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		var (
			passage   domain.Passage
			post      domain.Post
			createdAt time.Time
		)
		if err := rows.Scan(
			&passage.ID,
			&post.URI,
			&post.Author,
			&post.AuthorDisplayName,
			&passage.Chunk.Text,
			&createdAt,
			&post.ReplyCount,
			&post.RepostCount,
			&post.LikeCount,
			&passage.Chunk.Index,
			&passage.Chunk.Total,
			&passage.Distance,
		); err != nil {
			return nil, err
		}
		post.CreatedAt = createdAt.UTC()
		post.Text = passage.Chunk.Text
		passage.Chunk.Post = &post
		out = append(out, passage)
	}

	return out, rows.Err()
}

// List pages through indexed passages newest-first using keyset pagination
// on (created_at, id). A nil cursor starts from the top.
func (r *PassageRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]domain.Passage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, uri, author, author_display_name, content, created_at,
		       reply_count, repost_count, like_count, chunk_index, chunk_total
		FROM passages`
	args := []interface{}{}

	if cursor != nil {
		query += ` WHERE (created_at, id) < ($1::timestamptz, $2::uuid)`
		args = append(args, cursor.CreatedAt, cursor.LastID)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		var (
			passage   domain.Passage
			post      domain.Post
			createdAt time.Time
		)
		if err := rows.Scan(
			&passage.ID,
			&post.URI,
			&post.Author,
			&post.AuthorDisplayName,
			&passage.Chunk.Text,
			&createdAt,
			&post.ReplyCount,
			&post.RepostCount,
			&post.LikeCount,
			&passage.Chunk.Index,
			&passage.Chunk.Total,
		); err != nil {
			return nil, err
		}
		post.CreatedAt = createdAt.UTC()
		post.Text = passage.Chunk.Text
		passage.Chunk.Post = &post
		out = append(out, passage)
	}

	return out, rows.Err()
}

// Count returns the number of indexed passages.
func (r *PassageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	return count, err
}

// Clear destructively resets the index. Idempotent.
func (r *PassageRepository) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `TRUNCATE passages RESTART IDENTITY`)
	return err
}
