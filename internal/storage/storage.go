// Package storage persists relay state: accounts, conversations, their
// participants and messages. The same Store runs on sqlite and postgres; the
// driver packages only supply the connection and schema.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrGroupFull = errors.New("storage: group is full")
	ErrConflict  = errors.New("storage: already exists")
)

// Dialect describes what differs between the supported databases.
type Dialect struct {
	Name   string
	Schema string
	// Numbered switches ? placeholders to $1, $2, ...
	Numbered bool
}

type Store struct {
	Db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{Db: db, dialect: d}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.Db.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(s.dialect.Schema, ";\n") {
		st := strings.TrimSpace(stmt)
		if st == "" {
			continue
		}
		if _, err := s.Db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

func (s *Store) q(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type User struct {
	ID           int64
	Username     string
	DisplayName  string
	AvatarURL    string
	PasswordHash string
	CreatedAt    time.Time
}

type Conversation struct {
	ID         int64
	Name       string
	IsGroup    bool
	MaxMembers int
	CreatedAt  time.Time
}

type Participant struct {
	UserID      int64
	Username    string
	DisplayName string
	IsAdmin     bool
}

type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	SenderAvatar   string
	Content        string
	SentAt         time.Time
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *Store) CreateUser(ctx context.Context, username, displayName, passwordHash string) (int64, error) {
	if _, err := s.UserByUsername(ctx, username); err == nil {
		return 0, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	var id int64
	err := s.Db.QueryRowContext(ctx,
		s.q(`INSERT INTO users (username, display_name, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		username, displayName, passwordHash, millis(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	return s.user(ctx, `WHERE username=?`, username)
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	return s.user(ctx, `WHERE id=?`, id)
}

func (s *Store) user(ctx context.Context, where string, arg any) (User, error) {
	row := s.Db.QueryRowContext(ctx, s.q(`
		SELECT id, username, display_name, COALESCE(avatar_url, ''), password_hash, created_at
		FROM users `+where), arg)
	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

// CreateConversation inserts a conversation with its initial participants.
// The creator is admin of a group.
func (s *Store) CreateConversation(ctx context.Context, name string, isGroup bool, maxMembers int, creator int64, members []int64) (int64, error) {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var nameArg any
	if name != "" {
		nameArg = name
	}
	now := millis(time.Now())
	var id int64
	err = tx.QueryRowContext(ctx,
		s.q(`INSERT INTO conversations (name, is_group_chat, max_members, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		nameArg, isGroup, maxMembers, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	insert := s.q(`INSERT INTO participants (conversation_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, insert, id, creator, isGroup, now); err != nil {
		return 0, fmt.Errorf("add creator: %w", err)
	}
	for _, uid := range members {
		if uid == creator {
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, id, uid, false, now); err != nil {
			return 0, fmt.Errorf("add participant %d: %w", uid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// FindDirect returns the direct conversation between two accounts.
func (s *Store) FindDirect(ctx context.Context, a, b int64) (int64, error) {
	row := s.Db.QueryRowContext(ctx, s.q(`
		SELECT c.id FROM conversations c
		JOIN participants p1 ON p1.conversation_id=c.id AND p1.user_id=?
		JOIN participants p2 ON p2.conversation_id=c.id AND p2.user_id=?
		WHERE c.is_group_chat=? LIMIT 1`), a, b, false)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (s *Store) ConversationByID(ctx context.Context, id int64) (Conversation, error) {
	row := s.Db.QueryRowContext(ctx, s.q(`
		SELECT id, COALESCE(name, ''), is_group_chat, max_members, created_at
		FROM conversations WHERE id=?`), id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ConversationsFor(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.Db.QueryContext(ctx, s.q(`
		SELECT c.id, COALESCE(c.name, ''), c.is_group_chat, c.max_members, c.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.created_at DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var list []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(r scanner) (Conversation, error) {
	var c Conversation
	var created int64
	if err := r.Scan(&c.ID, &c.Name, &c.IsGroup, &c.MaxMembers, &created); err != nil {
		return Conversation{}, err
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func (s *Store) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	var n int
	err := s.Db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(1) FROM participants WHERE conversation_id=? AND user_id=?`),
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("membership: %w", err)
	}
	return n > 0, nil
}

func (s *Store) IsAdmin(ctx context.Context, conversationID, userID int64) (bool, error) {
	var n int
	err := s.Db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(1) FROM participants WHERE conversation_id=? AND user_id=? AND is_admin=?`),
		conversationID, userID, true,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("admin check: %w", err)
	}
	return n > 0, nil
}

// Participants lists members in join order.
func (s *Store) Participants(ctx context.Context, conversationID int64) ([]Participant, error) {
	rows, err := s.Db.QueryContext(ctx, s.q(`
		SELECT u.id, u.username, u.display_name, p.is_admin
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id=?
		ORDER BY p.joined_at, u.id`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("participants: %w", err)
	}
	defer rows.Close()

	var list []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.Username, &p.DisplayName, &p.IsAdmin); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// AddParticipant adds a member to a group, refusing once max_members is
// reached. Adding an existing member is a no-op.
func (s *Store) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var max, n int
	err = tx.QueryRowContext(ctx, s.q(`SELECT max_members FROM conversations WHERE id=?`), conversationID).Scan(&max)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM participants WHERE conversation_id=?`), conversationID).Scan(&n); err != nil {
		return err
	}
	if n >= max {
		return ErrGroupFull
	}
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO participants (conversation_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`), conversationID, userID, false, millis(time.Now()))
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return tx.Commit()
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	res, err := s.Db.ExecContext(ctx, s.q(`DELETE FROM participants WHERE conversation_id=? AND user_id=?`), conversationID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMessage stores a message and returns it with the sender snapshot.
func (s *Store) InsertMessage(ctx context.Context, conversationID, senderID int64, content string) (Message, error) {
	sender, err := s.UserByID(ctx, senderID)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     sender.DisplayName,
		SenderAvatar:   sender.AvatarURL,
		Content:        content,
		SentAt:         fromMillis(millis(time.Now())),
	}
	if m.SenderName == "" {
		m.SenderName = sender.Username
	}
	err = s.Db.QueryRowContext(ctx,
		s.q(`INSERT INTO messages (conversation_id, sender_id, content, sent_at) VALUES (?, ?, ?, ?) RETURNING id`),
		conversationID, senderID, content, millis(m.SentAt),
	).Scan(&m.ID)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Messages pages backwards from the newest message: skip counts from the
// newest. The page itself is returned oldest first.
func (s *Store) Messages(ctx context.Context, conversationID int64, skip, limit int) ([]Message, error) {
	rows, err := s.Db.QueryContext(ctx, s.q(`
		SELECT m.id, m.conversation_id, m.sender_id,
		       CASE WHEN u.display_name = '' THEN u.username ELSE u.display_name END,
		       COALESCE(u.avatar_url, ''), m.content, m.sent_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id=?
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT ? OFFSET ?`), conversationID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var list []Message
	for rows.Next() {
		var m Message
		var sent int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.SenderAvatar, &m.Content, &sent); err != nil {
			return nil, err
		}
		m.SentAt = fromMillis(sent)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// SearchUsers matches usernames containing q.
func (s *Store) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	rows, err := s.Db.QueryContext(ctx, s.q(`
		SELECT id, username, display_name, COALESCE(avatar_url, ''), created_at
		FROM users WHERE username LIKE ? ORDER BY username LIMIT ?`), "%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var list []User
	for rows.Next() {
		var u User
		var created int64
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &created); err != nil {
			return nil, err
		}
		u.CreatedAt = fromMillis(created)
		list = append(list, u)
	}
	return list, rows.Err()
}
