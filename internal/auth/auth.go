package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
)

// AuthService manages student accounts in the users table and issues
// the session tokens whose email claim the RLS policies match against.
type AuthService struct {
	db            *pgxpool.Pool
	jwtSecret     []byte
	jwtExpiry     time.Duration
	loginAttempts map[string]*loginAttempt
	attemptsMu    sync.Mutex
}

type loginAttempt struct {
	count    int
	lockedAt time.Time
}

func NewAuthService(db *pgxpool.Pool, jwtSecret string, jwtExpiry int) *AuthService {
	return &AuthService{
		db:            db,
		jwtSecret:     []byte(jwtSecret),
		jwtExpiry:     time.Duration(jwtExpiry) * time.Second,
		loginAttempts: make(map[string]*loginAttempt),
	}
}

type RegisterRequest struct {
	FirstName     string `json:"firstName"`
	MiddleName    string `json:"middleName,omitempty"`
	LastName      string `json:"lastName"`
	Extension     string `json:"extension,omitempty"`
	StudentNumber string `json:"studentNumber"`
	Course        string `json:"course"`
	Email         string `json:"email"`
	Password      string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  Student `json:"user"`
}

type Student struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Course        string    `json:"course"`
	StudentNumber string    `json:"student_number"`
	CreatedAt     time.Time `json:"created_at"`
}

type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Register creates a new student account.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, int, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var missing []string
	for field, v := range map[string]string{
		"firstName":     req.FirstName,
		"lastName":      req.LastName,
		"studentNumber": req.StudentNumber,
		"course":        req.Course,
		"email":         email,
		"password":      req.Password,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if len(req.Password) < 6 {
		return nil, http.StatusBadRequest, fmt.Errorf("password must be at least 6 characters")
	}

	// Check if email already exists
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM public.users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, http.StatusConflict, fmt.Errorf("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("hash password: %w", err)
	}

	nullable := func(v string) *string {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil
		}
		return &v
	}

	var student Student
	err = s.db.QueryRow(ctx, `
		INSERT INTO public.users (first_name, middle_name, last_name, extension, student_number, course, email, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, strings.TrimSpace(req.FirstName), nullable(req.MiddleName), strings.TrimSpace(req.LastName),
		nullable(req.Extension), strings.TrimSpace(req.StudentNumber), strings.TrimSpace(req.Course),
		email, string(hash)).Scan(&student.ID, &student.CreatedAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("insert user: %w", err)
	}

	student.Email = email
	student.Name = strings.TrimSpace(req.FirstName + " " + req.LastName)
	student.Course = strings.TrimSpace(req.Course)
	student.StudentNumber = strings.TrimSpace(req.StudentNumber)

	token, err := s.generateToken(student.ID, email)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResponse{Token: token, User: student}, http.StatusCreated, nil
}

// dummyHash is a pre-computed bcrypt hash used for timing-safe login.
// When user is not found, we still run bcrypt comparison to prevent timing attacks.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-safe-dummy-password-placeholder"), 12)

// Login authenticates a student and returns a session token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, int, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("email and password are required")
	}

	// Check lockout
	s.attemptsMu.Lock()
	attempt := s.loginAttempts[email]
	if attempt != nil && attempt.count >= 5 {
		if time.Since(attempt.lockedAt) < 15*time.Minute {
			s.attemptsMu.Unlock()
			bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password)) // timing-safe
			return nil, http.StatusTooManyRequests, fmt.Errorf("account temporarily locked, try again later")
		}
		// Lock expired, reset
		delete(s.loginAttempts, email)
	}
	s.attemptsMu.Unlock()

	var student Student
	var passwordHash string
	var firstName, lastName string
	err := s.db.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, course, student_number, password_hash, created_at
		FROM public.users WHERE email = $1
	`, email).Scan(&student.ID, &student.Email, &firstName, &lastName,
		&student.Course, &student.StudentNumber, &passwordHash, &student.CreatedAt)
	if err != nil {
		// Timing-safe: always run bcrypt even if user doesn't exist
		bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return nil, http.StatusUnauthorized, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		s.attemptsMu.Lock()
		a := s.loginAttempts[email]
		if a == nil {
			a = &loginAttempt{}
			s.loginAttempts[email] = a
		}
		a.count++
		if a.count >= 5 {
			a.lockedAt = time.Now()
		}
		s.attemptsMu.Unlock()
		return nil, http.StatusUnauthorized, fmt.Errorf("invalid credentials")
	}

	// Clear login attempts on successful login
	s.attemptsMu.Lock()
	delete(s.loginAttempts, email)
	s.attemptsMu.Unlock()

	student.Name = strings.TrimSpace(firstName + " " + lastName)

	token, err := s.generateToken(student.ID, email)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResponse{Token: token, User: student}, http.StatusOK, nil
}

// Profile returns the student row for an email, without the password hash.
func (s *AuthService) Profile(ctx context.Context, email string) (*Student, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var student Student
	var firstName, lastName string
	err := s.db.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, course, student_number, created_at
		FROM public.users WHERE email = $1
	`, email).Scan(&student.ID, &student.Email, &firstName, &lastName,
		&student.Course, &student.StudentNumber, &student.CreatedAt)
	if err != nil {
		return nil, err
	}
	student.Name = strings.TrimSpace(firstName + " " + lastName)
	return &student, nil
}

// ValidateToken verifies a session JWT and returns the claims.
func (s *AuthService) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

func (s *AuthService) generateToken(userID int64, email string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Email: email,
		Role:  database.RoleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			Issuer:    "gradalyze",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
