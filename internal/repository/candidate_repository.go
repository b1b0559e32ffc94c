package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"onboardingbot/internal/entities"
)

// maxProcessedIDs bounds the per-candidate dedup list.
const maxProcessedIDs = 100

const candidateColumns = `id, name, surname, phone_number, company, position,
	status, COALESCE(escalation_reason, ''), history, processed_message_ids, last_updated`

type CandidateRepository struct {
	db *pgxpool.Pool
}

func NewCandidateRepository(db *pgxpool.Pool) *CandidateRepository {
	return &CandidateRepository{db: db}
}

func scanCandidate(row pgx.Row) (*entities.Candidate, error) {
	var c entities.Candidate
	var historyRaw, idsRaw []byte
	err := row.Scan(&c.ID, &c.Name, &c.Surname, &c.PhoneNumber, &c.Company, &c.Position,
		&c.Status, &c.EscalationReason, &historyRaw, &idsRaw, &c.LastUpdated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(historyRaw, &c.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if err := json.Unmarshal(idsRaw, &c.ProcessedMessageIDs); err != nil {
		return nil, fmt.Errorf("decode processed ids: %w", err)
	}
	return &c, nil
}

// GetOrCreate returns the candidate for the phone number, creating a minimal
// record on first contact.
func (r *CandidateRepository) GetOrCreate(ctx context.Context, phone string) (*entities.Candidate, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO candidates (name, surname, phone_number, status, history, processed_message_ids)
		VALUES ('Unknown', 'Unknown', $1, 'sent', '[]', '[]')
		ON CONFLICT (phone_number) DO NOTHING
	`, phone)
	if err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}
	return scanCandidate(r.db.QueryRow(ctx,
		"SELECT "+candidateColumns+" FROM candidates WHERE phone_number = $1", phone))
}

// GetByPhone returns nil, nil when the phone number is unknown.
func (r *CandidateRepository) GetByPhone(ctx context.Context, phone string) (*entities.Candidate, error) {
	c, err := scanCandidate(r.db.QueryRow(ctx,
		"SELECT "+candidateColumns+" FROM candidates WHERE phone_number = $1", phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CandidateRepository) Create(ctx context.Context, c *entities.Candidate) error {
	if c.Status == "" {
		c.Status = entities.StatusSent
	}
	history, err := json.Marshal(emptyIfNilHistory(c.History))
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO candidates (name, surname, phone_number, company, position, status, history, processed_message_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '[]')
		RETURNING id
	`, c.Name, c.Surname, c.PhoneNumber, c.Company, c.Position, c.Status, history).Scan(&c.ID)
}

// Save persists the candidate's mutable fields. History is written whole:
// entries are only ever appended, or bulk-trimmed on resume.
func (r *CandidateRepository) Save(ctx context.Context, c *entities.Candidate) error {
	history, err := json.Marshal(emptyIfNilHistory(c.History))
	if err != nil {
		return err
	}
	var reason any
	if c.EscalationReason != "" {
		reason = c.EscalationReason
	}
	_, err = r.db.Exec(ctx, `
		UPDATE candidates
		SET name = $2, surname = $3, status = $4, escalation_reason = $5,
		    history = $6, last_updated = now()
		WHERE phone_number = $1
	`, c.PhoneNumber, c.Name, c.Surname, c.Status, reason, history)
	return err
}

// MarkProcessed records the message id in one atomic statement: the check and
// the append cannot interleave with another worker's. The stored list is
// trimmed to the most recent entries.
func (r *CandidateRepository) MarkProcessed(ctx context.Context, phone, messageID string) (bool, error) {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE candidates
		SET processed_message_ids =
			CASE WHEN jsonb_array_length(processed_message_ids) >= %d
				THEN (processed_message_ids - 0) || to_jsonb($2::text)
				ELSE processed_message_ids || to_jsonb($2::text)
			END,
			last_updated = now()
		WHERE phone_number = $1
		  AND NOT processed_message_ids ? $2
	`, maxProcessedIDs), phone, messageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CandidateRepository) Exists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM candidates WHERE phone_number = $1)", phone).Scan(&exists)
	return exists, err
}

func (r *CandidateRepository) ListByStatus(ctx context.Context, status string) ([]*entities.Candidate, error) {
	return r.list(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE status = $1 ORDER BY last_updated DESC", status)
}

// ListWithHistory returns candidates that have at least one history entry,
// most recently updated first.
func (r *CandidateRepository) ListWithHistory(ctx context.Context) ([]*entities.Candidate, error) {
	return r.list(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE jsonb_array_length(history) > 0 ORDER BY last_updated DESC")
}

func (r *CandidateRepository) ListAll(ctx context.Context) ([]*entities.Candidate, error) {
	return r.list(ctx, "SELECT "+candidateColumns+" FROM candidates ORDER BY last_updated DESC")
}

func (r *CandidateRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Candidate, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := []*entities.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func emptyIfNilHistory(h []entities.HistoryEntry) []entities.HistoryEntry {
	if h == nil {
		return []entities.HistoryEntry{}
	}
	return h
}
