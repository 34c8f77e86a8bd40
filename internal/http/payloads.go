package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/service"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type comicForm struct {
	Title       string `form:"title"`
	Author      string `form:"author"`
	Description string `form:"description"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"imageUrl"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type ComicResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	CoverURL    string   `json:"coverUrl"`
	Pages       []string `json:"pages"`
	OwnerID     string   `json:"ownerId"`
	// CreatedAt is unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		ImageURL: user.AvatarURL,
	}
}

func authToResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		Token: res.Token,
		User:  userToResponse(res.User),
	}
}

func comicToResponse(comic domain.Comic) ComicResponse {
	pages := comic.Pages
	if pages == nil {
		pages = []string{}
	}
	return ComicResponse{
		ID:          comic.ID,
		Title:       comic.Title,
		Description: comic.Description,
		Author:      comic.Author,
		CoverURL:    comic.CoverPath,
		Pages:       pages,
		OwnerID:     comic.OwnerID,
		CreatedAt:   comic.CreatedAt.UnixMilli(),
	}
}

// bindError converts gin binding failures into validation errors with
// messages a client can show.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.Errorf(domain.ErrValidation, "Invalid input: %s", fieldMessage(verrs[0]))
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return domain.Errorf(domain.ErrValidation, "Invalid input: malformed JSON body")
	}
	return domain.Errorf(domain.ErrValidation, "Invalid input: %v", err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Field() == "Email" {
			return "Valid email is required"
		}
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Valid email is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
