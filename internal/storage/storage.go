package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"curie/internal/models"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound wird statt sql.ErrNoRows zurückgegeben
	ErrNotFound = errors.New("storage: nicht gefunden")
	// ErrUsernameTaken: Benutzername existiert bereits
	ErrUsernameTaken = errors.New("storage: benutzername vergeben")
)

// Storage definiert das Interface für Datenpersistenz
type Storage interface {
	// Klassenliste
	CreateStudent(s *models.Student) error
	GetStudent(username string) (*models.Student, error)
	UsernameExists(username string) (bool, error)

	// Tagebuch
	SaveJournalEntry(e *models.JournalEntry) error
	GetJournalEntries(username string, limit int) ([]models.JournalEntry, error)

	// Aktivität
	SaveActivity(ev *models.ActivityEvent) error
	GetActivitySince(username string, since time.Time) ([]models.ActivityEvent, error)
	AddDailyMinutes(username, day string, minutes int) (int, error)
	GetDailyActivity(username string) ([]models.DailyActivity, error)

	// Quiz
	SaveQuiz(q *models.Quiz) error
	GetQuiz(id string) (*models.Quiz, error)
	GetAllQuizzes() ([]models.Quiz, error)
	SetActiveQuiz(id string) error
	GetActiveQuiz() (*models.Quiz, error)
	ClearActiveQuiz() error
	SaveQuizResult(r *models.QuizResult) error
	GetQuizResults(quizID string) ([]models.QuizResult, error)

	// Chat
	SaveChatMessage(msg *models.ChatMessage) error
	GetChatHistory(sessionID string) ([]models.ChatMessage, error)

	Close() error
}

// SQLiteStorage implementiert Storage mit SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage erstellt eine neue SQLite-Storage-Instanz
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Zeitstempel im sortierbaren SQLite-Format schreiben
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// modernc sqlite verträgt keine parallelen Schreiber
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		username TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		school TEXT,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		date TEXT,
		title TEXT,
		content TEXT,
		mood TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_activity (
		username TEXT NOT NULL,
		day TEXT NOT NULL,
		minutes INTEGER DEFAULT 0,
		PRIMARY KEY (username, day)
	);

	CREATE TABLE IF NOT EXISTS quizzes (
		id TEXT PRIMARY KEY,
		grade_id TEXT,
		title TEXT NOT NULL,
		standard TEXT,
		questions TEXT NOT NULL,
		active INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_results (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL,
		username TEXT,
		score INTEGER,
		total INTEGER,
		answers TEXT,
		completed_at DATETIME NOT NULL,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		username TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		topic_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(username, timestamp);
	CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_logs(username, timestamp);
	CREATE INDEX IF NOT EXISTS idx_results_quiz ON quiz_results(quiz_id);
	CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Klassenliste

func (s *SQLiteStorage) CreateStudent(st *models.Student) error {
	_, err := s.db.Exec(`
		INSERT INTO students (username, name, school, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, st.Username, st.Name, st.School, st.PasswordHash, st.CreatedAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrUsernameTaken
	}
	return err
}

func (s *SQLiteStorage) GetStudent(username string) (*models.Student, error) {
	var st models.Student
	var school sql.NullString
	err := s.db.QueryRow(`
		SELECT username, name, school, password_hash, created_at
		FROM students WHERE username = ?
	`, username).Scan(&st.Username, &st.Name, &school, &st.PasswordHash, &st.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	st.School = school.String
	return &st, nil
}

func (s *SQLiteStorage) UsernameExists(username string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM students WHERE username = ?`, username).Scan(&n)
	return n > 0, err
}

// Tagebuch

func (s *SQLiteStorage) SaveJournalEntry(e *models.JournalEntry) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO journal_entries (id, username, date, title, content, mood, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Username, e.Date, e.Title, e.Content, e.Mood, e.Timestamp.UTC())
	return err
}

// GetJournalEntries liefert die neuesten Einträge zuerst
func (s *SQLiteStorage) GetJournalEntries(username string, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, username, date, title, content, mood, timestamp
		FROM journal_entries WHERE username = ? ORDER BY timestamp DESC LIMIT ?
	`, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var date, title, content, mood sql.NullString
		if err := rows.Scan(&e.ID, &e.Username, &date, &title, &content, &mood, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Date, e.Title, e.Content, e.Mood = date.String, title.String, content.String, mood.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Aktivität

func (s *SQLiteStorage) SaveActivity(ev *models.ActivityEvent) error {
	details, _ := json.Marshal(ev.Details)
	_, err := s.db.Exec(`
		INSERT INTO activity_logs (id, username, action, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.Username, ev.Action, string(details), ev.Timestamp.UTC())
	return err
}

func (s *SQLiteStorage) GetActivitySince(username string, since time.Time) ([]models.ActivityEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, username, action, details, timestamp
		FROM activity_logs WHERE username = ? AND timestamp >= ? ORDER BY timestamp DESC
	`, username, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ActivityEvent
	for rows.Next() {
		var ev models.ActivityEvent
		var details sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Username, &ev.Action, &details, &ev.Timestamp); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(details.String), &ev.Details)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AddDailyMinutes erhöht den Tageszähler und liefert den neuen Stand
func (s *SQLiteStorage) AddDailyMinutes(username, day string, minutes int) (int, error) {
	_, err := s.db.Exec(`
		INSERT INTO daily_activity (username, day, minutes) VALUES (?, ?, ?)
		ON CONFLICT(username, day) DO UPDATE SET minutes = minutes + excluded.minutes
	`, username, day, minutes)
	if err != nil {
		return 0, err
	}
	var total int
	err = s.db.QueryRow(`SELECT minutes FROM daily_activity WHERE username = ? AND day = ?`, username, day).Scan(&total)
	return total, err
}

func (s *SQLiteStorage) GetDailyActivity(username string) ([]models.DailyActivity, error) {
	rows, err := s.db.Query(`
		SELECT username, day, minutes FROM daily_activity WHERE username = ? ORDER BY day DESC
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.DailyActivity
	for rows.Next() {
		var d models.DailyActivity
		if err := rows.Scan(&d.Username, &d.Day, &d.Minutes); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// Quiz

func (s *SQLiteStorage) SaveQuiz(q *models.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO quizzes (id, grade_id, title, standard, questions, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.GradeID, q.Title, q.Standard, string(questions), q.Active, q.CreatedAt)
	return err
}

const quizColumns = `id, grade_id, title, standard, questions, active, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanQuiz(row scanner) (*models.Quiz, error) {
	var q models.Quiz
	var gradeID, standard sql.NullString
	var questions string
	if err := row.Scan(&q.ID, &gradeID, &q.Title, &standard, &questions, &q.Active, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.GradeID, q.Standard = gradeID.String, standard.String
	if err := json.Unmarshal([]byte(questions), &q.Questions); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *SQLiteStorage) GetQuiz(id string) (*models.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRow(`SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

func (s *SQLiteStorage) GetAllQuizzes() ([]models.Quiz, error) {
	rows, err := s.db.Query(`SELECT ` + quizColumns + ` FROM quizzes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []models.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, rows.Err()
}

// SetActiveQuiz: es gibt höchstens eine aktive Zuweisung
func (s *SQLiteStorage) SetActiveQuiz(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE quizzes SET active = 0 WHERE active = 1`); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE quizzes SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStorage) GetActiveQuiz() (*models.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRow(`SELECT ` + quizColumns + ` FROM quizzes WHERE active = 1 LIMIT 1`))
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

func (s *SQLiteStorage) ClearActiveQuiz() error {
	_, err := s.db.Exec(`UPDATE quizzes SET active = 0 WHERE active = 1`)
	return err
}

func (s *SQLiteStorage) SaveQuizResult(r *models.QuizResult) error {
	answers, _ := json.Marshal(r.Answers)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO quiz_results (id, quiz_id, username, score, total, answers, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.QuizID, r.Username, r.Score, r.Total, string(answers), r.CompletedAt)
	return err
}

func (s *SQLiteStorage) GetQuizResults(quizID string) ([]models.QuizResult, error) {
	rows, err := s.db.Query(`
		SELECT id, quiz_id, username, score, total, answers, completed_at
		FROM quiz_results WHERE quiz_id = ? ORDER BY completed_at DESC
	`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.QuizResult
	for rows.Next() {
		var r models.QuizResult
		var username, answers sql.NullString
		if err := rows.Scan(&r.ID, &r.QuizID, &username, &r.Score, &r.Total, &answers, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Username = username.String
		json.Unmarshal([]byte(answers.String), &r.Answers)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Chat

func (s *SQLiteStorage) SaveChatMessage(msg *models.ChatMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, session_id, username, role, content, timestamp, topic_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Username, msg.Role, msg.Content, msg.Timestamp.UTC(), msg.TopicID)
	return err
}

func (s *SQLiteStorage) GetChatHistory(sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, username, role, content, timestamp, topic_id
		FROM chat_messages WHERE session_id = ? ORDER BY timestamp, rowid
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var username, topicID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &username, &msg.Role, &msg.Content, &msg.Timestamp, &topicID); err != nil {
			return nil, err
		}
		msg.Username, msg.TopicID = username.String, topicID.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
