package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"maildash/backend/internal/domain"
)

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// CreateUser 创建用户，用户名和邮箱大小写不敏感唯一
func (v *view) CreateUser(ctx context.Context, user *domain.User) error {
	email := strings.ToLower(user.Email)
	username := strings.ToLower(user.Username)
	if _, ok := v.st.users[user.ID]; ok {
		return domain.Conflict("user already exists")
	}
	if _, ok := v.st.byEmail[email]; ok {
		return domain.Conflict("email already exists")
	}
	if _, ok := v.st.byUsername[username]; ok {
		return domain.Conflict("username already exists")
	}
	user.UsernameKey = username
	v.st.users[user.ID] = cloneUser(user)
	v.st.byEmail[email] = user.ID
	v.st.byUsername[username] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户
func (v *view) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := v.st.users[id]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return cloneUser(user), nil
}

// GetUserByEmail 根据邮箱获取用户
func (v *view) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, ok := v.st.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return v.GetUserByID(ctx, id)
}

// GetUserByUsername 根据用户名获取用户
func (v *view) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, ok := v.st.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return v.GetUserByID(ctx, id)
}

// UpdateUser 更新用户，同步维护邮箱和用户名索引
func (v *view) UpdateUser(ctx context.Context, user *domain.User) error {
	old, ok := v.st.users[user.ID]
	if !ok {
		return domain.NotFound("user not found")
	}
	oldEmail, newEmail := strings.ToLower(old.Email), strings.ToLower(user.Email)
	oldName, newName := strings.ToLower(old.Username), strings.ToLower(user.Username)
	if id, ok := v.st.byEmail[newEmail]; ok && id != user.ID {
		return domain.Conflict("email already exists")
	}
	if id, ok := v.st.byUsername[newName]; ok && id != user.ID {
		return domain.Conflict("username already exists")
	}
	delete(v.st.byEmail, oldEmail)
	delete(v.st.byUsername, oldName)
	v.st.byEmail[newEmail] = user.ID
	v.st.byUsername[newName] = user.ID
	user.UsernameKey = newName
	v.st.users[user.ID] = cloneUser(user)
	return nil
}

// UpdateLastLogin 更新最后登录时间
func (v *view) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	user, ok := v.st.users[userID]
	if !ok {
		return domain.NotFound("user not found")
	}
	updated := cloneUser(user)
	updated.LastLoginAt = &at
	v.st.users[userID] = updated
	return nil
}

// ListUsers 分页列出用户，按创建时间倒序
func (v *view) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	search := strings.ToLower(filter.Search)
	matched := make([]domain.User, 0, len(v.st.users))
	for _, user := range v.st.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(user.Email), search) &&
			!strings.Contains(strings.ToLower(user.Username), search) {
			continue
		}
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, *cloneUser(user))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start, end := pageBounds(filter.Page, filter.PageSize, total)
	return matched[start:end], total, nil
}

// DeleteUser 删除用户
func (v *view) DeleteUser(ctx context.Context, userID string) error {
	user, ok := v.st.users[userID]
	if !ok {
		return domain.NotFound("user not found")
	}
	delete(v.st.byEmail, strings.ToLower(user.Email))
	delete(v.st.byUsername, strings.ToLower(user.Username))
	delete(v.st.users, userID)
	return nil
}

func pageBounds(page, pageSize, total int) (int, int) {
	if pageSize <= 0 {
		return 0, total
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return s.write(func(v *view) error { return v.CreateUser(ctx, user) })
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user *domain.User, err error) {
	err = s.read(func(v *view) error { user, err = v.GetUserByID(ctx, id); return err })
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user *domain.User, err error) {
	err = s.read(func(v *view) error { user, err = v.GetUserByEmail(ctx, email); return err })
	return user, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user *domain.User, err error) {
	err = s.read(func(v *view) error { user, err = v.GetUserByUsername(ctx, username); return err })
	return user, err
}

func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	return s.write(func(v *view) error { return v.UpdateUser(ctx, user) })
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.write(func(v *view) error { return v.UpdateLastLogin(ctx, userID, at) })
}

func (s *Store) ListUsers(ctx context.Context, filter domain.UserFilter) (users []domain.User, total int, err error) {
	err = s.read(func(v *view) error { users, total, err = v.ListUsers(ctx, filter); return err })
	return users, total, err
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.write(func(v *view) error { return v.DeleteUser(ctx, userID) })
}
