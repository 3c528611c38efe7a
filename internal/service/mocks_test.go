package service

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

type mockMessageRepo struct {
	messages      map[uint]*models.Message
	nextID        uint
	markReadCalls [][2]uint
	findPageCalls int
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: make(map[uint]*models.Message), nextID: 1}
}

func (m *mockMessageRepo) Create(message *models.Message) error {
	if message.ID == 0 {
		message.ID = m.nextID
		m.nextID++
	} else if message.ID >= m.nextID {
		m.nextID = message.ID + 1
	}
	copied := *message
	m.messages[message.ID] = &copied
	return nil
}

func (m *mockMessageRepo) FindByID(id uint) (*models.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *msg
	return &copied, nil
}

func (m *mockMessageRepo) matches(msg *models.Message, filter repository.ConversationFilter) bool {
	if filter.IsGroup() {
		return msg.GroupID != nil && *msg.GroupID == filter.GroupID
	}
	if msg.RecipientID == nil {
		return false
	}
	a, b := msg.SenderID, *msg.RecipientID
	return (a == filter.ViewerID && b == filter.CounterpartID) ||
		(a == filter.CounterpartID && b == filter.ViewerID)
}

func (m *mockMessageRepo) conversation(filter repository.ConversationFilter) []models.Message {
	var out []models.Message
	for _, msg := range m.messages {
		if m.matches(msg, filter) {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out
}

func (m *mockMessageRepo) FindConversationPage(filter repository.ConversationFilter, offset, limit int) ([]models.Message, error) {
	m.findPageCalls++
	all := m.conversation(filter)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockMessageRepo) CountConversation(filter repository.ConversationFilter) (int64, error) {
	return int64(len(m.conversation(filter))), nil
}

func (m *mockMessageRepo) MarkConversationRead(recipientID, counterpartID uint) (int64, error) {
	m.markReadCalls = append(m.markReadCalls, [2]uint{recipientID, counterpartID})
	var n int64
	for _, msg := range m.messages {
		if msg.RecipientID != nil && *msg.RecipientID == recipientID &&
			msg.SenderID == counterpartID && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *mockMessageRepo) SaveTombstone(message *models.Message) error {
	stored, ok := m.messages[message.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.IsDeleted = message.IsDeleted
	stored.DeletedAt = message.DeletedAt
	stored.DeletedBy = message.DeletedBy
	return nil
}

type mockUserRepo struct {
	users map[uint]*models.User
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockUserRepo) FindByID(id uint) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) SetPresence(userID uint, online bool, sessionID string, lastActive time.Time) error {
	if u, ok := m.users[userID]; ok {
		u.IsOnline = online
		u.SessionID = sessionID
		u.LastActive = &lastActive
	}
	return nil
}

func (m *mockUserRepo) TouchLastActive(userID uint, lastActive time.Time) error {
	if u, ok := m.users[userID]; ok {
		u.LastActive = &lastActive
	}
	return nil
}

func (m *mockUserRepo) ListOnline() ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.IsOnline {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockGroupRepo struct {
	groups  map[uint]*models.Group
	members map[uint][]uint
	roles   map[uint]map[uint]models.GroupRole
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{
		groups:  make(map[uint]*models.Group),
		members: make(map[uint][]uint),
		roles:   make(map[uint]map[uint]models.GroupRole),
	}
}

func (m *mockGroupRepo) addMember(groupID, userID uint, role models.GroupRole) {
	m.members[groupID] = append(m.members[groupID], userID)
	if m.roles[groupID] == nil {
		m.roles[groupID] = make(map[uint]models.GroupRole)
	}
	m.roles[groupID][userID] = role
}

func (m *mockGroupRepo) FindByID(id uint) (*models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return g, nil
}

func (m *mockGroupRepo) MemberIDs(groupID uint) ([]uint, error) {
	return append([]uint(nil), m.members[groupID]...), nil
}

func (m *mockGroupRepo) IsMember(groupID, userID uint) (bool, error) {
	for _, id := range m.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockGroupRepo) MemberRole(groupID, userID uint) (models.GroupRole, error) {
	role, ok := m.roles[groupID][userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}
