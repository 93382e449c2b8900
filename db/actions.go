package db

import (
	"context"
	"database/sql"
	"time"
)

// ActionRecord is one applied (or attempted) moderation action, persisted for audit.
type ActionRecord struct {
	VideoID         string
	ChatID          string
	MessageID       string
	AuthorID        string
	AuthorName      string
	Message         string
	Action          string // delete_and_ban | delete
	Reason          string
	BanDurationSecs int64
	AppliedAt       time.Time
}

// RecordAction appends one moderation action row.
func RecordAction(ctx context.Context, dbx *sql.DB, rec ActionRecord) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO moderation_actions (video_id, chat_id, message_id, author_id, author_name, message, action, reason, ban_duration_seconds, applied_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())`,
		rec.VideoID, rec.ChatID, rec.MessageID, rec.AuthorID, rec.AuthorName, rec.Message, rec.Action, rec.Reason, rec.BanDurationSecs)
	return err
}

// RecentActions returns up to limit most recent actions, newest first.
func RecentActions(ctx context.Context, dbx *sql.DB, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := dbx.QueryContext(ctx,
		`SELECT video_id, COALESCE(chat_id,''), message_id, author_id, COALESCE(author_name,''), COALESCE(message,''), action, COALESCE(reason,''), COALESCE(ban_duration_seconds,0), applied_at
		 FROM moderation_actions ORDER BY applied_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.VideoID, &r.ChatID, &r.MessageID, &r.AuthorID, &r.AuthorName, &r.Message, &r.Action, &r.Reason, &r.BanDurationSecs, &r.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountActions returns the total number of recorded actions.
func CountActions(ctx context.Context, dbx *sql.DB) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx, `SELECT COUNT(1) FROM moderation_actions`).Scan(&n)
	return n, err
}
