package rules

import (
	"gorm.io/gorm"
)

// scope is a transaction query being narrowed by conditions.
// Joins are attached at most once per name so repeated filters can share them.
type scope struct {
	db     *gorm.DB
	userId int
	joined map[string]struct{}
}

func newScope(db *gorm.DB, userId int) *scope {
	return &scope{db: db, userId: userId, joined: map[string]struct{}{}}
}

func (s *scope) join(name, query string, args ...any) {
	if _, ok := s.joined[name]; ok {
		return
	}
	s.joined[name] = struct{}{}
	s.db = s.db.Joins(query, args...)
}

func (s *scope) where(query any, args ...any) {
	s.db = s.db.Where(query, args...)
}
