package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/dmitrijs2005/tokenguard/internal/server/services"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// UserService is satisfied by *services.UserService.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, token.Response, bool, error)
	Login(ctx context.Context, email, password string) (*models.User, token.Response, error)
	Profile(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type registerRequest struct {
	Email        string  `json:"email" binding:"required,email,max=254"`
	Password     string  `json:"password" binding:"required,max=1024"`
	FirstName    *string `json:"first_name" binding:"omitempty,max=100"`
	LastName     *string `json:"last_name" binding:"omitempty,max=100"`
	LanguageCode string  `json:"language_code" binding:"omitempty,len=2"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FirstName    *string   `json:"first_name,omitempty"`
	LastName     *string   `json:"last_name,omitempty"`
	LanguageCode string    `json:"language_code"`
	CreatedAt    time.Time `json:"created_at"`
}

type authResponse struct {
	User  userResponse   `json:"user"`
	Token token.Response `json:"token"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

type Handler struct {
	users UserService
}

func NewHandler(users UserService) *Handler {
	return &Handler{users: users}
}

// Register answers 201 for a new account and 202 when the email already
// belongs to an account with the same password (treated as a login).
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, tok, created, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		LanguageCode: req.LanguageCode,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	status := http.StatusAccepted
	if created {
		status = http.StatusCreated
	}

	setTokenHeaders(c, tok)
	c.JSON(status, authResponse{User: newUserResponse(user), Token: tok})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, tok, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			err = common.ErrInvalidCredentials
		}
		abortWithError(c, err)
		return
	}

	setTokenHeaders(c, tok)
	c.JSON(http.StatusOK, authResponse{User: newUserResponse(user), Token: tok})
}

// Me returns the profile of the authenticated user.
func (h *Handler) Me(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abortWithError(c, common.ErrorUnauthorized)
		return
	}

	user, err := h.users.Profile(c.Request.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			err = common.ErrorUnauthorized
		}
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	_ = c.Error(err)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgBadRequest, "details": details})
		return false
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
	return false
}
