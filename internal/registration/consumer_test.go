package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugang-app/apiserver/internal/mq"
	"github.com/sugang-app/apiserver/internal/store"
	"github.com/sugang-app/apiserver/types"
)

// memRegistrationStore mimics the repository's transactional semantics: all
// checks and the increment happen under one lock, serialized per call.
type memRegistrationStore struct {
	mu         sync.Mutex
	users      map[string]bool
	capacity   map[string]int
	registered map[string]int
	seats      map[string]map[string]bool // courseID -> studentID -> held
	order      map[string][]string        // studentID -> courseIDs in order
}

func newMemRegistrationStore() *memRegistrationStore {
	return &memRegistrationStore{
		users:      make(map[string]bool),
		capacity:   make(map[string]int),
		registered: make(map[string]int),
		seats:      make(map[string]map[string]bool),
		order:      make(map[string][]string),
	}
}

func (s *memRegistrationStore) addUser(studentID string) {
	s.users[studentID] = true
}

func (s *memRegistrationStore) addCourse(courseID string, capacity int) {
	s.capacity[courseID] = capacity
	s.seats[courseID] = make(map[string]bool)
}

func (s *memRegistrationStore) Register(ctx context.Context, studentID, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity, ok := s.capacity[courseID]
	if !ok {
		return store.ErrCourseNotFound
	}
	if s.registered[courseID] >= capacity {
		return store.ErrCourseFull
	}
	if !s.users[studentID] {
		return store.ErrUserNotFound
	}
	if s.seats[courseID][studentID] {
		return store.ErrAlreadyRegistered
	}

	s.seats[courseID][studentID] = true
	s.registered[courseID]++
	s.order[studentID] = append(s.order[studentID], courseID)
	return nil
}

func (s *memRegistrationStore) Unregister(ctx context.Context, studentID, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.capacity[courseID]; !ok {
		return store.ErrCourseNotFound
	}
	if !s.seats[courseID][studentID] {
		return store.ErrNotRegistered
	}

	delete(s.seats[courseID], studentID)
	if s.registered[courseID] > 0 {
		s.registered[courseID]--
	}
	courses := s.order[studentID]
	for i, id := range courses {
		if id == courseID {
			s.order[studentID] = append(courses[:i:i], courses[i+1:]...)
			break
		}
	}
	return nil
}

type memStatusStore struct {
	mu       sync.Mutex
	statuses map[string]types.RegistrationStatus
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{statuses: make(map[string]types.RegistrationStatus)}
}

func (s *memStatusStore) Record(ctx context.Context, status types.RegistrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.RequestID] = status
	return nil
}

func (s *memStatusStore) Get(ctx context.Context, requestID string) (types.RegistrationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[requestID]
	if !ok {
		return types.RegistrationStatus{}, store.ErrNotFound
	}
	return status, nil
}

func (s *memStatusStore) outcomes() (accepted, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, status := range s.statuses {
		switch status.Outcome {
		case types.OutcomeAccepted:
			accepted++
		case types.OutcomeRejected:
			rejected++
		}
	}
	return accepted, rejected
}

func intentMessage(t *testing.T, action types.IntentAction, studentID, courseID string) mq.Message {
	t.Helper()
	body, err := json.Marshal(types.IntentMessage{
		Action:    action,
		StudentID: studentID,
		CourseID:  courseID,
	})
	require.NoError(t, err)
	return mq.Message{
		ID:   DedupKey(body),
		Data: body,
		Attributes: map[string]string{
			mq.AttrDedupKey: DedupKey(body),
		},
	}
}

func TestConsumerRegisterAccepted(t *testing.T) {
	regs := newMemRegistrationStore()
	regs.addUser("s1")
	regs.addCourse("c1", 10)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	msg := intentMessage(t, types.ActionRegister, "s1", "c1")
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{msg}))

	require.Equal(t, 1, regs.registered["c1"])
	require.Equal(t, []string{"c1"}, regs.order["s1"])

	status, err := statuses.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAccepted, status.Outcome)
	require.Equal(t, "s1", status.StudentID)
}

func TestConsumerDuplicateDeliveryIsIdempotent(t *testing.T) {
	regs := newMemRegistrationStore()
	regs.addUser("s1")
	regs.addCourse("c1", 10)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	msg := intentMessage(t, types.ActionRegister, "s1", "c1")
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{msg}))
	// Redelivery of the same record is ordinary re-processing: the seat is
	// already held, so it lands as an idempotent accept without touching
	// state or flipping the recorded outcome.
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{msg}))

	require.Equal(t, 1, regs.registered["c1"])
	require.Equal(t, []string{"c1"}, regs.order["s1"])

	status, err := statuses.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAccepted, status.Outcome)
}

func TestConsumerReRegisterAfterUnregister(t *testing.T) {
	// A fresh register after an unregister hashes to the same request ID as
	// the first register. It must be applied again, not treated as already
	// processed: the seat comes back and the status reflects the new accept.
	regs := newMemRegistrationStore()
	regs.addUser("s1")
	regs.addCourse("c1", 10)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	register := intentMessage(t, types.ActionRegister, "s1", "c1")
	unregister := intentMessage(t, types.ActionUnregister, "s1", "c1")

	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{register}))
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{unregister}))
	require.Equal(t, 0, regs.registered["c1"])

	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{register}))

	require.Equal(t, 1, regs.registered["c1"])
	require.True(t, regs.seats["c1"]["s1"])
	require.Equal(t, []string{"c1"}, regs.order["s1"])

	status, err := statuses.Get(context.Background(), register.ID)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAccepted, status.Outcome)
}

func TestConsumerCapacityBound(t *testing.T) {
	const capacity = 3
	regs := newMemRegistrationStore()
	regs.addCourse("c1", capacity)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	var batch []mq.Message
	for i := 0; i < capacity+2; i++ {
		studentID := fmt.Sprintf("s%d", i)
		regs.addUser(studentID)
		batch = append(batch, intentMessage(t, types.ActionRegister, studentID, "c1"))
	}

	require.NoError(t, consumer.ProcessBatch(context.Background(), batch))

	require.Equal(t, capacity, regs.registered["c1"])
	accepted, rejected := statuses.outcomes()
	require.Equal(t, capacity, accepted)
	require.Equal(t, 2, rejected)
}

func TestConsumerCapacityBoundConcurrentWorkers(t *testing.T) {
	const (
		capacity = 5
		extra    = 7
		workers  = 4
	)
	regs := newMemRegistrationStore()
	regs.addCourse("c1", capacity)
	statuses := newMemStatusStore()

	var batches [workers][]mq.Message
	for i := 0; i < capacity+extra; i++ {
		studentID := fmt.Sprintf("s%d", i)
		regs.addUser(studentID)
		batches[i%workers] = append(batches[i%workers], intentMessage(t, types.ActionRegister, studentID, "c1"))
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(batch []mq.Message) {
			defer wg.Done()
			consumer := NewConsumer(regs, statuses, nil)
			_ = consumer.ProcessBatch(context.Background(), batch)
		}(batches[w])
	}
	wg.Wait()

	// Exactly capacity seats granted, never more, and every intent has a
	// recorded terminal outcome.
	require.Equal(t, capacity, regs.registered["c1"])
	require.Len(t, regs.seats["c1"], capacity)
	accepted, rejected := statuses.outcomes()
	require.Equal(t, capacity, accepted)
	require.Equal(t, extra, rejected)
}

func TestConsumerUnregisterIsSymmetric(t *testing.T) {
	regs := newMemRegistrationStore()
	regs.addUser("s1")
	regs.addCourse("c1", 10)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	register := intentMessage(t, types.ActionRegister, "s1", "c1")
	unregister := intentMessage(t, types.ActionUnregister, "s1", "c1")
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{register, unregister}))

	require.Equal(t, 0, regs.registered["c1"])
	require.Empty(t, regs.order["s1"])

	status, err := statuses.Get(context.Background(), unregister.ID)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeAccepted, status.Outcome)
}

func TestConsumerUnregisterNeverRegistered(t *testing.T) {
	regs := newMemRegistrationStore()
	regs.addUser("s1")
	regs.addCourse("c1", 10)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	msg := intentMessage(t, types.ActionUnregister, "s1", "c1")
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{msg}))

	require.Equal(t, 0, regs.registered["c1"])

	status, err := statuses.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeRejected, status.Outcome)
	require.Equal(t, types.ReasonNotRegistered, status.Reason)
}

func TestConsumerCourseFullScenario(t *testing.T) {
	// Capacity one, two register intents in order: the first wins, the
	// second gets a queryable rejection.
	regs := newMemRegistrationStore()
	regs.addUser("studentA")
	regs.addUser("studentB")
	regs.addCourse("c1", 1)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	first := intentMessage(t, types.ActionRegister, "studentA", "c1")
	second := intentMessage(t, types.ActionRegister, "studentB", "c1")
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{first, second}))

	require.Equal(t, 1, regs.registered["c1"])
	require.True(t, regs.seats["c1"]["studentA"])
	require.False(t, regs.seats["c1"]["studentB"])

	status, err := statuses.Get(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeRejected, status.Outcome)
	require.Equal(t, types.ReasonCourseFull, status.Reason)
}

func TestConsumerUnknownActionRejected(t *testing.T) {
	regs := newMemRegistrationStore()
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	body := []byte(`{"action":"enroll","studentId":"s1","courseId":"c1"}`)
	bad := mq.Message{ID: "m1", Data: body, Attributes: map[string]string{mq.AttrDedupKey: DedupKey(body)}}

	regs.addUser("s1")
	regs.addCourse("c1", 1)
	good := intentMessage(t, types.ActionRegister, "s1", "c1")

	// The bad record must not stop the batch.
	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{bad, good}))

	require.Equal(t, 1, regs.registered["c1"])

	status, err := statuses.Get(context.Background(), DedupKey(body))
	require.NoError(t, err)
	require.Equal(t, types.OutcomeRejected, status.Outcome)
	require.Equal(t, types.ReasonUnknownAction, status.Reason)
}

func TestConsumerRejectionsDoNotStopBatch(t *testing.T) {
	regs := newMemRegistrationStore()
	regs.addUser("s1")
	regs.addUser("s2")
	regs.addCourse("c1", 10)
	statuses := newMemStatusStore()
	consumer := NewConsumer(regs, statuses, nil)

	missingCourse := intentMessage(t, types.ActionRegister, "s1", "nope")
	missingUser := intentMessage(t, types.ActionRegister, "ghost", "c1")
	good := intentMessage(t, types.ActionRegister, "s2", "c1")

	require.NoError(t, consumer.ProcessBatch(context.Background(), []mq.Message{missingCourse, missingUser, good}))

	require.Equal(t, 1, regs.registered["c1"])

	status, err := statuses.Get(context.Background(), missingCourse.ID)
	require.NoError(t, err)
	require.Equal(t, types.ReasonCourseNotFound, status.Reason)

	status, err = statuses.Get(context.Background(), missingUser.ID)
	require.NoError(t, err)
	require.Equal(t, types.ReasonUserNotFound, status.Reason)
}

type failingRegistrationStore struct{}

func (failingRegistrationStore) Register(ctx context.Context, studentID, courseID string) error {
	return errors.New("connection refused")
}

func (failingRegistrationStore) Unregister(ctx context.Context, studentID, courseID string) error {
	return errors.New("connection refused")
}

func TestConsumerTransientErrorPropagates(t *testing.T) {
	statuses := newMemStatusStore()
	consumer := NewConsumer(failingRegistrationStore{}, statuses, nil)

	msg := intentMessage(t, types.ActionRegister, "s1", "c1")
	err := consumer.ProcessBatch(context.Background(), []mq.Message{msg})
	require.Error(t, err)

	// No terminal outcome recorded: the broker redelivers the batch.
	_, err = statuses.Get(context.Background(), msg.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
