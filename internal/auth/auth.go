// Package auth verwaltet Anmeldung und Registrierung von Schülern sowie
// den Lehrkraft-Zugang. Sitzungen werden als JWT ausgegeben.
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"curie/internal/models"
	"curie/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("auth: ungültige zugangsdaten")
	ErrInvalidToken       = errors.New("auth: ungültiges token")
	ErrMissingFields      = errors.New("auth: pflichtfelder fehlen")
)

// Rollen
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

const defaultTokenTTL = 12 * time.Hour

// Claims eines Sitzungs-Tokens
type Claims struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Roster ist der Teil der Storage, den die Anmeldung braucht
type Roster interface {
	CreateStudent(s *models.Student) error
	GetStudent(username string) (*models.Student, error)
	UsernameExists(username string) (bool, error)
}

// Options für den Service
type Options struct {
	Secret          string
	TeacherUsername string
	TeacherPassword string
	TokenTTL        time.Duration
	// Cost für bcrypt; 0 = bcrypt.DefaultCost
	Cost int
	Now  func() time.Time
}

// Service stellt Tokens aus und prüft sie
type Service struct {
	roster Roster
	secret []byte
	opts   Options
}

func NewService(roster Roster, opts Options) (*Service, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth: jwt secret fehlt")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{roster: roster, secret: []byte(opts.Secret), opts: opts}, nil
}

// SignupRequest enthält die Anmeldedaten eines neuen Schülers
type SignupRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	School   string `json:"school"`
	Password string `json:"password"`
}

// Session ist die Antwort auf Login und Signup
type Session struct {
	Token    string          `json:"token"`
	Student  *models.Student `json:"student,omitempty"`
	Role     string          `json:"role"`
	Username string          `json:"username"`
}

var usernameChars = regexp.MustCompile(`[^a-z0-9.]`)

// BaseUsername bildet "vorname.nachname"
func BaseUsername(name, surname string) string {
	base := strings.ToLower(strings.TrimSpace(name)) + "." + strings.ToLower(strings.TrimSpace(surname))
	return usernameChars.ReplaceAllString(base, "")
}

// NormalizeUsername akzeptiert auch "vorname nachname"
func NormalizeUsername(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(input))), ".")
}

// Signup legt einen Schüler an; bei Kollision wird ab 2 durchnummeriert
func (s *Service) Signup(req SignupRequest) (*Session, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Surname) == "" ||
		strings.TrimSpace(req.School) == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.Cost)
	if err != nil {
		return nil, fmt.Errorf("passwort hashen: %w", err)
	}

	base := BaseUsername(req.Name, req.Surname)
	username := base
	for counter := 2; ; counter++ {
		exists, err := s.roster.UsernameExists(username)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		username = base + strconv.Itoa(counter)
	}

	st := &models.Student{
		Username:     username,
		Name:         strings.TrimSpace(req.Name) + " " + strings.TrimSpace(req.Surname),
		School:       strings.TrimSpace(req.School),
		PasswordHash: string(hash),
		CreatedAt:    s.opts.Now(),
	}
	if err := s.roster.CreateStudent(st); err != nil {
		return nil, err
	}
	return s.session(st.Username, st.Name, RoleStudent, st)
}

// Login prüft zuerst die Lehrkraft, dann die Klassenliste
func (s *Service) Login(username, password string) (*Session, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if s.opts.TeacherUsername != "" && username == NormalizeUsername(s.opts.TeacherUsername) {
		if password != s.opts.TeacherPassword {
			return nil, ErrInvalidCredentials
		}
		return s.session(username, "Teacher", RoleTeacher, nil)
	}

	st, err := s.roster.GetStudent(username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(st.Username, st.Name, RoleStudent, st)
}

func (s *Service) session(username, name, role string, st *models.Student) (*Session, error) {
	now := s.opts.Now()
	claims := &Claims{
		Username: username,
		Name:     name,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tokenString, Student: st, Role: role, Username: username}, nil
}

// ValidateToken prüft ein Token und liefert die Claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Student liefert den Eintrag zu gültigen Schüler-Claims
func (s *Service) Student(c *Claims) (*models.Student, error) {
	if c == nil || c.Role != RoleStudent {
		return nil, storage.ErrNotFound
	}
	return s.roster.GetStudent(c.Username)
}
