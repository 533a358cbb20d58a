package manager

import (
	"context"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/config"
	"github.com/Goofygiraffe06/blaze/internal/workerpool"
)

// WorkManager provides separate pools for DB, crypto and mail work so that
// bcrypt or a slow SMTP relay cannot starve socket handlers.
type WorkManager struct {
	db     *workerpool.Pool
	crypto *workerpool.Pool
	mail   *workerpool.Pool
}

// Option configures the WorkManager.
type Option func(*options)

type options struct {
	dbWorkers     int
	cryptoWorkers int
	mailWorkers   int
	queueSize     int
}

// WithDBWorkers sets the DB worker count.
func WithDBWorkers(n int) Option { return func(o *options) { o.dbWorkers = n } }

// WithCryptoWorkers sets the crypto worker count.
func WithCryptoWorkers(n int) Option { return func(o *options) { o.cryptoWorkers = n } }

// WithMailWorkers sets the mail worker count.
func WithMailWorkers(n int) Option { return func(o *options) { o.mailWorkers = n } }

// WithQueueSize sets the shared queue size (per pool).
func WithQueueSize(n int) Option { return func(o *options) { o.queueSize = n } }

// NewWorkManager constructs the manager with the given options (or defaults from config).
func NewWorkManager(opts ...Option) *WorkManager {
	o := &options{
		dbWorkers:     config.DBWorkerCount(),
		cryptoWorkers: config.CryptoWorkerCount(),
		mailWorkers:   config.MailWorkerCount(),
		queueSize:     config.WorkerQueueSize(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &WorkManager{
		db:     workerpool.New("db", o.dbWorkers, o.queueSize, 5*time.Second),
		crypto: workerpool.New("crypto", o.cryptoWorkers, o.queueSize, 10*time.Second),
		mail:   workerpool.New("mail", o.mailWorkers, o.queueSize, 30*time.Second),
	}
}

// Close shuts down all pools.
func (m *WorkManager) Close() {
	if m == nil {
		return
	}
	m.db.Close()
	m.crypto.Close()
	m.mail.Close()
}

// RunDB runs a storage call on the DB pool and waits for it.
func (m *WorkManager) RunDB(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.Run(ctx, fn)
}

// RunCrypto runs a CPU-bound call (bcrypt) on the crypto pool and waits for it.
func (m *WorkManager) RunCrypto(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.crypto.Run(ctx, fn)
}

// SubmitMail schedules a delivery without waiting for it.
func (m *WorkManager) SubmitMail(fn func(ctx context.Context)) error {
	return m.mail.Submit(fn)
}
