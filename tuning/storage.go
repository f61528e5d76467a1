package tuning

import (
	"context"
	"sync"
	"time"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// StudyInfo identifies a study in a Storage.
type StudyInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	Sampler   string    `json:"sampler"`
	Created   time.Time `json:"created"`
}

// Storage persists studies and their trial history.
type Storage interface {
	CreateStudy(ctx context.Context, info StudyInfo) error
	SaveTrial(ctx context.Context, studyID string, trial TrialResult) error
	LoadTrials(ctx context.Context, studyID string) ([]TrialResult, error)
	Close() error
}

// ErrStudyNotFound is returned when a storage has no study with the given ID.
var ErrStudyNotFound = scigoErrors.New("robotdetect: study not found")

// MemoryStorage keeps studies in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	studies map[string]StudyInfo
	trials  map[string][]TrialResult
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		studies: make(map[string]StudyInfo),
		trials:  make(map[string][]TrialResult),
	}
}

// CreateStudy implements Storage.
func (m *MemoryStorage) CreateStudy(_ context.Context, info StudyInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.studies[info.ID]; ok {
		return scigoErrors.Newf("robotdetect: study %s already exists", info.ID)
	}
	m.studies[info.ID] = info
	return nil
}

// SaveTrial implements Storage.
func (m *MemoryStorage) SaveTrial(_ context.Context, studyID string, trial TrialResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.studies[studyID]; !ok {
		return scigoErrors.Wrapf(ErrStudyNotFound, "study %s", studyID)
	}
	m.trials[studyID] = append(m.trials[studyID], trial)
	return nil
}

// LoadTrials implements Storage.
func (m *MemoryStorage) LoadTrials(_ context.Context, studyID string) ([]TrialResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.studies[studyID]; !ok {
		return nil, scigoErrors.Wrapf(ErrStudyNotFound, "study %s", studyID)
	}
	return append([]TrialResult(nil), m.trials[studyID]...), nil
}

// Close implements Storage.
func (m *MemoryStorage) Close() error { return nil }
