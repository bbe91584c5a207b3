package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const noteColumns = `id, document_id, user_id, transaction_ref, transaction_key, note_text, note_type, priority,
	is_internal, attachments, metadata, created_at, updated_at`

// visibleClause expects $2 = see everything, $3 = viewer id.
const visibleClause = `($2 OR is_internal = FALSE OR user_id = $3)`

type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, note *domain.Note) error {
	attachments := note.Attachments
	if attachments == nil {
		attachments = []domain.NoteAttachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	metadataJSON, err := json.Marshal(note.Metadata)
	if err != nil {
		return fmt.Errorf("marshal note metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO notes (`+noteColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		note.ID, note.DocumentID, note.AuthorID, note.TransactionRef, note.TransactionKey, note.Text,
		string(note.Type), string(note.Priority), note.Internal, attachmentsJSON, metadataJSON,
		note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *NoteRepository) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, id)
	return scanOneNote(row, "get note", id)
}

func (r *NoteRepository) ListByDocument(ctx context.Context, documentID string, v domain.NoteVisibility) ([]domain.Note, error) {
	return r.list(ctx, `WHERE document_id = $1 AND `+visibleClause, documentID, v.All, v.ViewerID)
}

func (r *NoteRepository) ListByTransaction(ctx context.Context, transactionRef string, v domain.NoteVisibility) ([]domain.Note, error) {
	return r.list(ctx, `WHERE transaction_ref = $1 AND `+visibleClause, transactionRef, v.All, v.ViewerID)
}

func (r *NoteRepository) ListByAuthor(ctx context.Context, authorID string) ([]domain.Note, error) {
	return r.list(ctx, `WHERE user_id = $1`, authorID)
}

func (r *NoteRepository) list(ctx context.Context, where string, args ...any) ([]domain.Note, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+noteColumns+`
FROM notes
`+where+`
ORDER BY created_at DESC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return out, nil
}

// Update applies the non-nil patch fields and bumps updated_at.
func (r *NoteRepository) Update(ctx context.Context, id string, patch domain.NotePatch) (*domain.Note, error) {
	var text, priority sql.NullString
	var internal sql.NullBool
	if patch.Text != nil {
		text = sql.NullString{String: *patch.Text, Valid: true}
	}
	if patch.Priority != nil {
		priority = sql.NullString{String: string(*patch.Priority), Valid: true}
	}
	if patch.Internal != nil {
		internal = sql.NullBool{Bool: *patch.Internal, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE notes
SET note_text = COALESCE($2, note_text),
	priority = COALESCE($3, priority),
	is_internal = COALESCE($4, is_internal),
	updated_at = $5
WHERE id = $1
RETURNING `+noteColumns, id, text, priority, internal, time.Now().UTC())
	return scanOneNote(row, "update note", id)
}

func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("delete note", "note", id)
	}
	return nil
}

func (r *NoteRepository) StatsForDocument(ctx context.Context, documentID string) (domain.NoteStats, error) {
	var stats domain.NoteStats
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE note_type = 'user'),
	COUNT(*) FILTER (WHERE note_type = 'admin'),
	COUNT(*) FILTER (WHERE priority = 'high'),
	COUNT(*) FILTER (WHERE priority = 'urgent'),
	COUNT(*) FILTER (WHERE is_internal),
	MAX(created_at)
FROM notes
WHERE document_id = $1
`, documentID).Scan(
		&stats.TotalNotes, &stats.UserNotes, &stats.AdminNotes,
		&stats.HighPriorityNotes, &stats.UrgentNotes, &stats.InternalNotes, &last,
	)
	if err != nil {
		return domain.NoteStats{}, fmt.Errorf("note stats: %w", err)
	}
	if last.Valid {
		ts := last.Time
		stats.LastNoteDate = &ts
	}
	return stats, nil
}

func scanOneNote(row rowScanner, op, id string) (*domain.Note, error) {
	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(op, "note", id)
		}
		return nil, err
	}
	return &note, nil
}

func scanNote(row rowScanner) (domain.Note, error) {
	var n domain.Note
	var noteType, priority string
	var attachments, metadata []byte

	err := row.Scan(
		&n.ID, &n.DocumentID, &n.AuthorID, &n.TransactionRef, &n.TransactionKey, &n.Text,
		&noteType, &priority, &n.Internal, &attachments, &metadata, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Note{}, err
		}
		return domain.Note{}, fmt.Errorf("scan note: %w", err)
	}
	if err := json.Unmarshal(attachments, &n.Attachments); err != nil {
		return domain.Note{}, fmt.Errorf("unmarshal attachments: %w", err)
	}
	if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
		return domain.Note{}, fmt.Errorf("unmarshal note metadata: %w", err)
	}
	n.Type = domain.NoteType(noteType)
	n.Priority = domain.NotePriority(priority)
	return n, nil
}
