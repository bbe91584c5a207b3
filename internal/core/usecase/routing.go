package usecase

import (
	"strings"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

// NoteRecipients decides who is emailed about a new note.
//
//  1. A non-admin author notifies every admin.
//  2. An admin author of a public note notifies the document owner, unless
//     the owner wrote it.
//  3. High and urgent notes notify every admin regardless of 1 and 2.
//
// Each user appears at most once, keeping the role of its first selection.
func NoteRecipients(
	author domain.User,
	owner *domain.User,
	admins []domain.User,
	internal bool,
	priority domain.NotePriority,
) []domain.Recipient {
	var set recipientSet

	authorIsAdmin := author.Type == domain.RoleAdmin
	if !authorIsAdmin {
		set.addAll(admins, domain.RecipientAdmin)
	}
	if authorIsAdmin && !internal && owner != nil && owner.ID != author.ID {
		set.add(*owner, domain.RecipientDocumentOwner)
	}
	if priority.Escalated() {
		set.addAll(admins, domain.RecipientAdmin)
	}
	return set.list
}

type recipientSet struct {
	seen map[string]struct{}
	list []domain.Recipient
}

func (s *recipientSet) add(u domain.User, role domain.RecipientRole) {
	key := u.ID
	if key == "" {
		key = "email:" + strings.ToLower(u.Email)
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	if strings.TrimSpace(u.Email) == "" {
		return
	}
	s.seen[key] = struct{}{}
	s.list = append(s.list, domain.Recipient{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		Role:      role,
	})
}

func (s *recipientSet) addAll(users []domain.User, role domain.RecipientRole) {
	for _, u := range users {
		s.add(u, role)
	}
}
