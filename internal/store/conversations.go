package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotUpdated is returned when an update matched no row: the conversation
// is missing or has sync disabled.
var ErrNotUpdated = errors.New("conversation not updated")

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const conversationColumns = `zid, github_sync_enabled, github_welcomed, tracked_repo, github_pr_id, owner_uid,
	is_active, is_archived, github_repo_name, github_repo_owner, github_branch_name,
	github_pr_title, github_pr_submitter, github_pr_merged,
	description, fip_number, fip_title, fip_author, fip_discussions_to,
	fip_status, fip_type, fip_category, fip_created, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ZID, &c.SyncEnabled, &c.Welcomed, &c.TrackedRepo, &c.PRNumber, &c.OwnerUID,
		&c.IsActive, &c.IsArchived, &c.RepoName, &c.RepoOwner, &c.BranchName,
		&c.PRTitle, &c.Submitter, &c.Merged,
		&c.Description, &c.FIPNumber, &c.FIPTitle, &c.FIPAuthor, &c.FIPDiscussionsTo,
		&c.FIPStatus, &c.FIPType, &c.FIPCategory, &c.FIPCreated, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// FindByPRNumber returns nil, nil when repo has no conversation for the request.
func (s *SQLStore) FindByPRNumber(ctx context.Context, repo string, number int) (*Conversation, error) {
	query := s.dialect.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE tracked_repo=$1 AND github_pr_id=$2`)
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, repo, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation %s#%d: %w", repo, number, err)
	}
	return &conv, nil
}

// InsertConversation creates a sync-enabled conversation that has not been
// welcomed yet. When one already exists for the request it is left alone and
// inserted is false.
func (s *SQLStore) InsertConversation(ctx context.Context, pr PRFields, fip FIPFields) (zid int64, inserted bool, err error) {
	now := s.now()
	query := s.dialect.rebind(`
		INSERT INTO conversations (
			tracked_repo, github_pr_id, owner_uid, is_active, is_archived,
			github_sync_enabled, github_welcomed, github_repo_name, github_repo_owner, github_branch_name,
			github_pr_title, github_pr_submitter, github_pr_merged,
			description, fip_number, fip_title, fip_author, fip_discussions_to,
			fip_status, fip_type, fip_category, fip_created, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (tracked_repo, github_pr_id) DO NOTHING
		RETURNING zid
	`)
	err = s.db.QueryRowContext(ctx, query,
		pr.TrackedRepo, pr.PRNumber, pr.OwnerUID, pr.IsActive, pr.IsArchived,
		pr.RepoName, pr.RepoOwner, pr.BranchName,
		pr.PRTitle, pr.Submitter, pr.Merged,
		fip.Description, fip.FIPNumber, fip.FIPTitle, fip.FIPAuthor, fip.FIPDiscussionsTo,
		fip.FIPStatus, fip.FIPType, fip.FIPCategory, fip.FIPCreated, now, now,
	).Scan(&zid)
	if err == nil {
		return zid, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("insert conversation %s#%d: %w", pr.TrackedRepo, pr.PRNumber, err)
	}

	existing, err := s.FindByPRNumber(ctx, pr.TrackedRepo, pr.PRNumber)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("insert conversation %s#%d: conflicting row vanished", pr.TrackedRepo, pr.PRNumber)
	}
	return existing.ZID, false, nil
}

// UpdateConversationPR writes the pull request columns only.
func (s *SQLStore) UpdateConversationPR(ctx context.Context, pr PRFields) error {
	query := s.dialect.rebind(`
		UPDATE conversations SET
			owner_uid=$1, is_active=$2, is_archived=$3, github_repo_name=$4,
			github_repo_owner=$5, github_branch_name=$6, github_pr_title=$7,
			github_pr_submitter=$8, github_pr_merged=$9, updated_at=$10
		WHERE tracked_repo=$11 AND github_pr_id=$12 AND github_sync_enabled = TRUE
	`)
	res, err := s.db.ExecContext(ctx, query,
		pr.OwnerUID, pr.IsActive, pr.IsArchived, pr.RepoName,
		pr.RepoOwner, pr.BranchName, pr.PRTitle,
		pr.Submitter, pr.Merged, s.now(),
		pr.TrackedRepo, pr.PRNumber,
	)
	if err != nil {
		return fmt.Errorf("update conversation %s#%d: %w", pr.TrackedRepo, pr.PRNumber, err)
	}
	return requireUpdated(res, pr)
}

// UpdateConversationPRAndFIP writes the pull request and document columns.
func (s *SQLStore) UpdateConversationPRAndFIP(ctx context.Context, pr PRFields, fip FIPFields) error {
	query := s.dialect.rebind(`
		UPDATE conversations SET
			owner_uid=$1, is_active=$2, is_archived=$3, github_repo_name=$4,
			github_repo_owner=$5, github_branch_name=$6, github_pr_title=$7,
			github_pr_submitter=$8, github_pr_merged=$9,
			description=$10, fip_number=$11, fip_title=$12, fip_author=$13,
			fip_discussions_to=$14, fip_status=$15, fip_type=$16, fip_category=$17,
			fip_created=$18, updated_at=$19
		WHERE tracked_repo=$20 AND github_pr_id=$21 AND github_sync_enabled = TRUE
	`)
	res, err := s.db.ExecContext(ctx, query,
		pr.OwnerUID, pr.IsActive, pr.IsArchived, pr.RepoName,
		pr.RepoOwner, pr.BranchName, pr.PRTitle,
		pr.Submitter, pr.Merged,
		fip.Description, fip.FIPNumber, fip.FIPTitle, fip.FIPAuthor,
		fip.FIPDiscussionsTo, fip.FIPStatus, fip.FIPType, fip.FIPCategory,
		fip.FIPCreated, s.now(),
		pr.TrackedRepo, pr.PRNumber,
	)
	if err != nil {
		return fmt.Errorf("update conversation %s#%d: %w", pr.TrackedRepo, pr.PRNumber, err)
	}
	return requireUpdated(res, pr)
}

func requireUpdated(res sql.Result, pr PRFields) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conversation %s#%d: %w", pr.TrackedRepo, pr.PRNumber, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s#%d", ErrNotUpdated, pr.TrackedRepo, pr.PRNumber)
	}
	return nil
}

// SetSyncEnabled toggles the opt-out flag. found is false when repo has no
// conversation for the request.
func (s *SQLStore) SetSyncEnabled(ctx context.Context, repo string, number int, enabled bool) (found bool, err error) {
	query := s.dialect.rebind(`UPDATE conversations SET github_sync_enabled=$1, updated_at=$2 WHERE tracked_repo=$3 AND github_pr_id=$4`)
	res, err := s.db.ExecContext(ctx, query, enabled, s.now(), repo, number)
	if err != nil {
		return false, fmt.Errorf("set sync enabled %s#%d: %w", repo, number, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set sync enabled %s#%d: %w", repo, number, err)
	}
	return n > 0, nil
}

// MarkWelcomed records that the welcome comment for the request was posted.
func (s *SQLStore) MarkWelcomed(ctx context.Context, repo string, number int) error {
	query := s.dialect.rebind(`UPDATE conversations SET github_welcomed=TRUE WHERE tracked_repo=$1 AND github_pr_id=$2`)
	if _, err := s.db.ExecContext(ctx, query, repo, number); err != nil {
		return fmt.Errorf("mark welcomed %s#%d: %w", repo, number, err)
	}
	return nil
}

// ListConversations returns the conversations of repo, newest request first.
func (s *SQLStore) ListConversations(ctx context.Context, repo string) ([]Conversation, error) {
	query := s.dialect.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE tracked_repo=$1 ORDER BY github_pr_id DESC`)
	rows, err := s.db.QueryContext(ctx, query, repo)
	if err != nil {
		return nil, fmt.Errorf("list conversations %s: %w", repo, err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *SQLStore) GetOrCreateUserByGitHubUsername(ctx context.Context, username string) (User, error) {
	if username == "" {
		return User{}, errors.New("github username is required")
	}
	insert := s.dialect.rebind(`INSERT INTO users (github_username, created_at) VALUES ($1, $2) ON CONFLICT (github_username) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, insert, username, s.now()); err != nil {
		return User{}, fmt.Errorf("insert user %s: %w", username, err)
	}

	var user User
	find := s.dialect.rebind(`SELECT uid, github_username, created_at FROM users WHERE github_username=$1`)
	if err := s.db.QueryRowContext(ctx, find, username).Scan(&user.UID, &user.GitHubUsername, &user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("lookup user %s: %w", username, err)
	}
	return user, nil
}
