package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/unicore-dev/unicore-api/internal/dto"
	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/repository"
	"github.com/unicore-dev/unicore-api/pkg/mailer"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memoryUserRepo implements repository.UserRepository over a map.
type memoryUserRepo struct {
	users map[uint]models.User
}

func newMemoryUserRepo(users ...models.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: make(map[uint]models.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *memoryUserRepo) GetByID(_ context.Context, id uint) (models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) ListByRoleAndDepartment(_ context.Context, role, department string) ([]models.User, error) {
	var matched []models.User
	for _, user := range r.users {
		if user.Role == role && (department == "" || user.Department == department) {
			matched = append(matched, user)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

// memoryAssignmentRepo implements repository.AssignmentRepository over maps,
// resolving Student/Reviewer associations through a memoryUserRepo.
type memoryAssignmentRepo struct {
	users       *memoryUserRepo
	assignments map[uint]models.Assignment
	nextID      uint
	nextEventID uint
	failApply   error
}

func newMemoryAssignmentRepo(users *memoryUserRepo) *memoryAssignmentRepo {
	return &memoryAssignmentRepo{
		users:       users,
		assignments: make(map[uint]models.Assignment),
		nextID:      1,
		nextEventID: 1,
	}
}

func (r *memoryAssignmentRepo) seed(assignment models.Assignment) models.Assignment {
	if assignment.ID == 0 {
		assignment.ID = r.nextID
	}
	if assignment.ID >= r.nextID {
		r.nextID = assignment.ID + 1
	}
	for i := range assignment.History {
		if assignment.History[i].ID == 0 {
			assignment.History[i].ID = r.nextEventID
		}
		if assignment.History[i].ID >= r.nextEventID {
			r.nextEventID = assignment.History[i].ID + 1
		}
	}
	r.assignments[assignment.ID] = assignment
	return assignment
}

func (r *memoryAssignmentRepo) hydrate(assignment models.Assignment) models.Assignment {
	if user, ok := r.users.users[assignment.StudentID]; ok {
		assignment.Student = user
	}
	if user, ok := r.users.users[assignment.ReviewerID]; ok {
		assignment.Reviewer = user
	}
	history := make([]models.ReviewEvent, len(assignment.History))
	copy(history, assignment.History)
	for i := range history {
		if user, ok := r.users.users[history[i].ReviewerID]; ok {
			history[i].Reviewer = user
		}
	}
	assignment.History = history
	return assignment
}

func (r *memoryAssignmentRepo) GetByID(_ context.Context, id uint) (models.Assignment, error) {
	assignment, ok := r.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return r.hydrate(assignment), nil
}

func (r *memoryAssignmentRepo) Create(_ context.Context, assignment *models.Assignment) error {
	assignment.ID = r.nextID
	r.nextID++
	assignment.CreatedAt = time.Now()
	assignment.UpdatedAt = assignment.CreatedAt
	r.assignments[assignment.ID] = *assignment
	return nil
}

func (r *memoryAssignmentRepo) CreateBatch(ctx context.Context, assignments []*models.Assignment) error {
	for _, assignment := range assignments {
		if err := r.Create(ctx, assignment); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryAssignmentRepo) matches(assignment models.Assignment, filter repository.AssignmentFilter) bool {
	if filter.StudentID != nil && assignment.StudentID != *filter.StudentID {
		return false
	}
	if filter.ReviewerID != nil && assignment.ReviewerID != *filter.ReviewerID {
		return false
	}
	if filter.ExcludeDrafts && assignment.Status == models.StatusDraft {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if assignment.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		owner := r.users.users[assignment.StudentID]
		if !strings.Contains(strings.ToLower(assignment.Title), needle) &&
			!strings.Contains(strings.ToLower(owner.Name), needle) {
			return false
		}
	}
	return true
}

func (r *memoryAssignmentRepo) List(_ context.Context, filter repository.AssignmentFilter) ([]models.Assignment, int64, error) {
	var matched []models.Assignment
	for _, assignment := range r.assignments {
		if r.matches(assignment, filter) {
			matched = append(matched, r.hydrate(assignment))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		switch filter.Sort {
		case repository.SortOldest:
			return matched[i].ID < matched[j].ID
		case repository.SortTitle:
			return matched[i].Title < matched[j].Title
		default:
			return matched[i].ID > matched[j].ID
		}
	})

	total := int64(len(matched))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	if filter.PageSize > 0 {
		start := (page - 1) * filter.PageSize
		if start >= len(matched) {
			return nil, total, nil
		}
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r *memoryAssignmentRepo) CountByStatus(_ context.Context, filter repository.AssignmentFilter) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, assignment := range r.assignments {
		if r.matches(assignment, filter) {
			counts[assignment.Status]++
		}
	}
	return counts, nil
}

func (r *memoryAssignmentRepo) ApplyTransition(_ context.Context, assignment *models.Assignment, events ...*models.ReviewEvent) error {
	if r.failApply != nil {
		return r.failApply
	}
	stored, ok := r.assignments[assignment.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, event := range events {
		event.ID = r.nextEventID
		r.nextEventID++
		event.AssignmentID = assignment.ID
		event.CreatedAt = time.Now()
		stored.History = append(stored.History, *event)
	}
	stored.Status = assignment.Status
	stored.ReviewerID = assignment.ReviewerID
	stored.Description = assignment.Description
	stored.FileURL = assignment.FileURL
	stored.ApprovalRemark = assignment.ApprovalRemark
	stored.RejectionRemark = assignment.RejectionRemark
	stored.ReviewerSignature = assignment.ReviewerSignature
	stored.SignatureImageURL = assignment.SignatureImageURL
	r.assignments[assignment.ID] = stored
	return nil
}

// memoryTokenRepo implements repository.ReviewTokenRepository without redis.
type memoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[uint]repository.PendingReview
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{tokens: make(map[uint]repository.PendingReview)}
}

func (r *memoryTokenRepo) Put(_ context.Context, actorID uint, pending repository.PendingReview, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[actorID] = pending
	return nil
}

func (r *memoryTokenRepo) Get(_ context.Context, actorID uint) (repository.PendingReview, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.tokens[actorID]
	return pending, ok, nil
}

func (r *memoryTokenRepo) Delete(_ context.Context, actorID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, actorID)
	return nil
}

// recordingNotifier captures Notify calls without any delivery machinery.
type recordingNotifier struct {
	mu          sync.Mutex
	inputs      []NotificationInput
	unreadCount int64
	unreadErr   error
}

func (n *recordingNotifier) Notify(_ context.Context, input NotificationInput) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, input)
}

func (n *recordingNotifier) List(context.Context, uint, int, int) ([]dto.NotificationResponse, error) {
	return nil, nil
}

func (n *recordingNotifier) UnreadCount(context.Context, uint) (int64, error) {
	return n.unreadCount, n.unreadErr
}

func (n *recordingNotifier) MarkRead(context.Context, uint, uint) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{}, nil
}

func (n *recordingNotifier) MarkAllRead(context.Context, uint) (int64, error) { return 0, nil }

func (n *recordingNotifier) Subscribe(uint) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse)
	return ch, func() { close(ch) }
}

func (n *recordingNotifier) Start(context.Context) {}

func (n *recordingNotifier) sent() []NotificationInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationInput, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// recordingMailer captures outbound mail; failErr makes every send fail.
type recordingMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
	failErr  error
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailer.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

type stubUploader struct {
	calls int
}

func (u *stubUploader) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	u.calls++
	return "https://cdn.example.com/" + name, nil
}

func fileHeaderFromBytes(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func pdfBytes() []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%s\n%%%%EOF", strings.Repeat("stream data ", 10)))
}

func pngBytes() []byte {
	return []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
}
