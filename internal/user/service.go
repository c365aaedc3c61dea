package user

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/internal/api"
	alignctx "github.com/alignlab/alignd/internal/context"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

// sessionDuration is how long a newly created session is valid.
const sessionDuration = 7 * 24 * time.Hour

// freeTierName is the subscription tier assigned to newly registered users.
const freeTierName = "free"

// Service describes a user manager.
type Service struct {
	tokenKey []byte
	users    Store
	sessions SessionStore
}

// New creates a new user service backed by Postgres stores.
func New(tokenKey string) *Service {
	return NewService(tokenKey, NewPostgresStore(), NewPostgresSessionStore())
}

// NewService creates a user service with explicit store implementations.
func NewService(tokenKey string, users Store, sessions SessionStore) *Service {
	return &Service{tokenKey: []byte(tokenKey), users: users, sessions: sessions}
}

type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID model.SessionID `json:"session_id"`
}

// generateToken creates a session row and signs a bearer token referencing it.
func (s *Service) generateToken(c echo.Context, user model.User) (string, error) {
	session := model.UserSession{
		UserID: user.ID,
		Expiry: time.Now().Add(sessionDuration),
	}
	if err := s.sessions.Add(c.Request().Context(), &session); err != nil {
		return "", err
	}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(session.Expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionID: session.ID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate authentication token")
	}
	return token, nil
}

// ValidateToken returns the user session referenced by an authentication
// token. The token must verify and the session must still exist and be
// unexpired.
func (s *Service) ValidateToken(c echo.Context, token string) (*model.UserSession, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected token signing method: %v", t.Header["alg"])
		}
		return s.tokenKey, nil
	})
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.ByID(c.Request().Context(), claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Expiry.Before(time.Now()) {
		return nil, errors.Errorf("session %d has expired", session.ID)
	}
	return session, nil
}

// ProcessAuthentication is a middleware processing function that attempts to
// authenticate incoming HTTP requests from the Bearer authorization header.
func (s *Service) ProcessAuthentication(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authRaw := c.Request().Header.Get("Authorization")
		if authRaw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		if !strings.HasPrefix(authRaw, "Bearer ") {
			return echo.ErrUnauthorized
		}
		token := strings.TrimPrefix(authRaw, "Bearer ")

		session, err := s.ValidateToken(c, token)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return echo.NewHTTPError(http.StatusForbidden)
			}
			return echo.NewHTTPError(http.StatusUnauthorized)
		}

		user, err := s.users.ByID(c.Request().Context(), session.UserID)
		if err != nil {
			return errors.Wrapf(err, "failed to get user from session: %d", session.ID)
		}
		if !user.Active {
			return echo.NewHTTPError(http.StatusForbidden, "inactive user")
		}

		c.(*alignctx.AlignContext).SetUser(*user)
		c.(*alignctx.AlignContext).SetUserSession(*session)
		return next(c)
	}
}

func (s *Service) postRegister(c echo.Context) (interface{}, error) {
	var request struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&request); err != nil {
		return nil, err
	}
	if request.Email == "" || request.Username == "" || request.Password == "" {
		return nil, api.AsValidationError("email, username and password are required")
	}

	ctx := c.Request().Context()
	if _, err := s.users.ByEmail(ctx, request.Email); err == nil {
		return nil, api.AsValidationError("email already registered")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.ByUsername(ctx, request.Username); err == nil {
		return nil, api.AsValidationError("username already taken")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	tier, err := s.users.TierByName(ctx, freeTierName)
	if err != nil {
		return nil, errors.Wrap(err, "free subscription tier not found")
	}

	user := model.User{
		Email:    request.Email,
		Username: request.Username,
		Active:   true,
		TierID:   tier.ID,
	}
	if err := user.UpdatePasswordHash(request.Password); err != nil {
		return nil, err
	}
	if err := s.users.Add(ctx, &user); err != nil {
		if _, ok := errors.Cause(err).(db.ErrDuplicateUser); ok {
			return nil, api.AsValidationError("username already taken")
		}
		return nil, err
	}

	log.WithField("username", user.Username).Info("registered new user")
	return c.JSON(http.StatusCreated, user), nil
}

func (s *Service) postLogin(c echo.Context) (interface{}, error) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&request); err != nil {
		return nil, err
	}

	badCredentials := echo.NewHTTPError(http.StatusUnauthorized, "incorrect username or password")

	user, err := s.users.ByUsername(c.Request().Context(), request.Username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, badCredentials
		}
		return nil, err
	}
	if !user.Active || !user.ValidatePassword(request.Password) {
		return nil, badCredentials
	}

	token, err := s.generateToken(c, *user)
	if err != nil {
		return nil, err
	}

	return map[string]string{"access_token": token, "token_type": "bearer"}, nil
}

func (s *Service) postLogout(c echo.Context) (interface{}, error) {
	session := c.(*alignctx.AlignContext).MustGetUserSession()
	if err := s.sessions.Delete(c.Request().Context(), session.ID); err != nil {
		return nil, err
	}
	return map[string]string{"message": "logged out"}, nil
}

func (s *Service) getMe(c echo.Context) (interface{}, error) {
	me := c.(*alignctx.AlignContext).MustGetUser()
	// Refresh from the database to pick up any concurrent changes.
	user, err := s.users.ByID(c.Request().Context(), me.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// QuotaReport summarizes a user's storage entitlement and usage.
type QuotaReport struct {
	TotalStorageLimit  int64  `json:"total_storage_limit"`
	UsedStorage        int64  `json:"used_storage"`
	AvailableStorage   int64  `json:"available_storage"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks"`
	SubscriptionTier   string `json:"subscription_tier"`
}

func (s *Service) getQuota(c echo.Context) (interface{}, error) {
	me := c.(*alignctx.AlignContext).MustGetUser()
	return s.Quota(c, me.ID)
}

// Quota builds the quota report for the given user.
func (s *Service) Quota(c echo.Context, id model.UserID) (*QuotaReport, error) {
	ctx := c.Request().Context()
	user, err := s.users.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tier, err := s.users.TierByID(ctx, user.TierID)
	if err != nil {
		return nil, err
	}
	return &QuotaReport{
		TotalStorageLimit:  tier.TotalStorageLimit,
		UsedStorage:        user.UsedStorage,
		AvailableStorage:   max(0, tier.TotalStorageLimit-user.UsedStorage),
		MaxConcurrentTasks: tier.MaxConcurrentTasks,
		SubscriptionTier:   tier.DisplayName,
	}, nil
}
