package database

import (
	"sync"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/capture"
	"github.com/trackworks/dcc-pilot/pkg/logger"
	"gorm.io/gorm"
)

// CaptureRepository persists diagnostic capture records
type CaptureRepository struct {
	db *gorm.DB
}

// NewCaptureRepository creates a new capture repository
func NewCaptureRepository(db *gorm.DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

// Create adds one capture entry
func (r *CaptureRepository) Create(entry *CaptureEntry) error {
	return r.db.Create(entry).Error
}

// GetRecent retrieves the most recent N capture entries
func (r *CaptureRepository) GetRecent(limit int) ([]CaptureEntry, error) {
	var entries []CaptureEntry
	err := r.db.Order("time DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// DeleteOlderThan deletes capture entries older than the specified time
func (r *CaptureRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("time < ?", before).Delete(&CaptureEntry{})
	return result.RowsAffected, result.Error
}

// CaptureWriter drains capture records into the database on its own
// goroutine. Trail listeners run inline on the capturing goroutine, so
// the listener only enqueues; a full queue drops the record rather than
// stall the capture path.
type CaptureWriter struct {
	repo    *CaptureRepository
	log     *logger.Logger
	queue   chan capture.Record
	done    chan struct{}
	exited  chan struct{}
	started bool
	once    sync.Once
	dropped uint64
	mu      sync.Mutex
}

// NewCaptureWriter creates a capture writer with the given queue depth
func NewCaptureWriter(repo *CaptureRepository, depth int, log *logger.Logger) *CaptureWriter {
	if depth <= 0 {
		depth = 256
	}
	return &CaptureWriter{
		repo:   repo,
		log:    log,
		queue:  make(chan capture.Record, depth),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Listener returns the trail listener feeding this writer
func (w *CaptureWriter) Listener() capture.Listener {
	return func(record capture.Record) {
		select {
		case w.queue <- record:
		default:
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
		}
	}
}

// Start launches the writer goroutine
func (w *CaptureWriter) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *CaptureWriter) run() {
	defer close(w.exited)
	for {
		select {
		case record := <-w.queue:
			w.persist(record)
		case <-w.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case record := <-w.queue:
					w.persist(record)
				default:
					return
				}
			}
		}
	}
}

func (w *CaptureWriter) persist(record capture.Record) {
	entry := CaptureEntry{
		Time:  record.Time,
		Topic: record.Topic,
		Tag:   record.Tag,
		Text:  record.Text,
	}
	if err := w.repo.Create(&entry); err != nil {
		w.log.Warn("capture persistence failed", logger.Error(err))
	}
}

// Stop shuts the writer down, draining the queue first
func (w *CaptureWriter) Stop() {
	w.once.Do(func() {
		close(w.done)
	})
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.exited
	}
}

// Dropped returns the number of records lost to a full queue
func (w *CaptureWriter) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
