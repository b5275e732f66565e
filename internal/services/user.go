package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/internal/storage"
	"github.com/diewo77/go-quotations/validation"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength is enforced on signup and password changes.
const MinPasswordLength = 8

// Signup is the registration payload.
type Signup struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ProfileUpdate is what a user may change on their own account.
type ProfileUpdate struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserUpdate is an admin change to another account. Nil fields are left alone.
type UserUpdate struct {
	Approved *bool   `json:"approved"`
	Role     *string `json:"role"`
}

// UserService manages accounts.
type UserService struct {
	db    *gorm.DB
	cache *cache.Cache
	store storage.Store
}

func NewUserService(db *gorm.DB, c *cache.Cache, store storage.Store) *UserService {
	return &UserService{db: db, cache: c, store: store}
}

func (s *UserService) invalidate() {
	s.cache.InvalidatePrefix(realtime.Invalidations[realtime.TableUsers]...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) emailTaken(ctx context.Context, email string, except uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND id <> ?", email, except).Count(&count).Error
	return count > 0, err
}

// Register creates an unapproved account with the user role.
func (s *UserService) Register(ctx context.Context, in Signup) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	v := make(validation.Violations)
	validation.Required("email", in.Email, v)
	validation.Email("email", in.Email, v)
	validation.MinLength("password", in.Password, MinPasswordLength, v)
	if err := invalid(v); err != nil {
		return nil, err
	}
	taken, err := s.emailTaken(ctx, in.Email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := models.User{
		Email:     in.Email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      models.RoleUser,
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.invalidate()
	return &u, nil
}

// Authenticate checks email and password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists reports whether id names an account. Used to verify sessions.
func (s *UserService) Exists(ctx context.Context, id uint) bool {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		log.Printf("verify user %d: %v", id, err)
		return false
	}
	return count > 0
}

// List returns every account, newest first.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return cache.Fetch(ctx, s.cache, realtime.KeyUsers+"list", func(ctx context.Context) ([]models.User, error) {
		var users []models.User
		if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&users).Error; err != nil {
			return nil, err
		}
		return users, nil
	})
}

// Update applies an admin change to approval or role.
func (s *UserService) Update(ctx context.Context, id uint, in UserUpdate) (*models.User, error) {
	changes := map[string]any{}
	if in.Role != nil {
		role := strings.TrimSpace(*in.Role)
		v := make(validation.Violations)
		validation.OneOf("role", role, models.Roles, v)
		if role == "" || !v.Empty() {
			return nil, ErrInvalidRole
		}
		changes["role"] = role
	}
	if in.Approved != nil {
		changes["approved"] = *in.Approved
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		s.invalidate()
	}
	return s.Get(ctx, id)
}

// UpdateProfile changes the caller's own names and email.
func (s *UserService) UpdateProfile(ctx context.Context, id uint, in ProfileUpdate) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	v := make(validation.Violations)
	validation.Required("email", in.Email, v)
	validation.Email("email", in.Email, v)
	if err := invalid(v); err != nil {
		return nil, err
	}
	taken, err := s.emailTaken(ctx, in.Email, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"email":      in.Email,
		"first_name": strings.TrimSpace(in.FirstName),
		"last_name":  strings.TrimSpace(in.LastName),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.invalidate()
	return s.Get(ctx, id)
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id uint, current, next string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	v := make(validation.Violations)
	validation.MinLength("password", next, MinPasswordLength, v)
	if err := invalid(v); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", string(hash)).Error
}

// SetAvatar stores a new avatar image and replaces the previous one.
func (s *UserService) SetAvatar(ctx context.Context, id uint, f FileUpload) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key := storage.ObjectKey(storage.NamespaceAvatars, id, f.Name)
	if err := s.store.Put(ctx, key, f.Body, f.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"avatar_url":  s.store.URL(key),
		"avatar_path": key,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}
	if u.AvatarPath != "" {
		if err := s.store.Delete(ctx, u.AvatarPath); err != nil {
			log.Printf("delete old avatar %s: %v", u.AvatarPath, err)
		}
	}
	s.invalidate()
	return s.Get(ctx, id)
}
