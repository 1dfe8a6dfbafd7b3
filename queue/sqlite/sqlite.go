package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jirevwe/litepool/queue"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

var (
	createQueues = `create table if not exists queues (
    		id TEXT not null primary key,
    		name TEXT not null unique,
    		created_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`

	createArchivedQueues = `create table if not exists archived_queues (
    		id TEXT not null primary key,
    		name TEXT not null,
    		created_at TEXT not null,
    		archived_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`

	createMessages = `CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL PRIMARY KEY,
			message BLOB,
			status TEXT not null default 'scheduled',
			queue_id TEXT NOT NULL,
			visible_at TEXT not null,
			created_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ')),
			updated_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ')),
			FOREIGN KEY(queue_id) REFERENCES queues(name)
		) strict;`

	createMessagesIndex = `CREATE INDEX IF NOT EXISTS idx_messages_status_visible
			ON messages (status, visible_at);`

	createArchivedMessages = `CREATE TABLE IF NOT EXISTS archived_messages (
    		id TEXT NOT NULL PRIMARY KEY,
			message BLOB,
			status TEXT not null,
			queue_id TEXT NOT NULL,
			created_at TEXT not null,
			updated_at TEXT not null,
			archived_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`
)

var _ queue.Queue = (*Sqlite)(nil)

type id struct {
	Id string `db:"id"`
}

type Sqlite struct {
	logger *slog.Logger
	db     *sqlx.DB
}

func NewSqlite(dbPath string, logger *slog.Logger) (*Sqlite, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; one connection keeps writers from
	// tripping over each other's locks
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_size_limit = 67108864;",
		"PRAGMA mmap_size = 134217728;",
		"PRAGMA cache_size = 2000;",
	} {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s := &Sqlite{db: db, logger: logger}

	ctx := context.Background()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range []string{
			createQueues,
			createArchivedQueues,
			createMessages,
			createMessagesIndex,
			createArchivedMessages,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Sqlite) CreateQueue(ctx context.Context, queueName string) (err error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err = tx.ExecContext(ctx, `INSERT INTO queues (id, name) values ($1, $2)`, ulid.Make().String(), queueName)
		if err != nil {
			return err
		}

		s.logger.Debug(fmt.Sprintf("created queue %s", queueName))
		return nil
	})
}

func (s *Sqlite) QueueExists(ctx context.Context, queueName string) bool {
	var n int
	if err := s.db.GetContext(ctx, &n, `select count(*) from queues where name = $1`, queueName); err != nil {
		return false
	}

	return n > 0
}

// DeleteQueue archives the queue and it's messages, use TruncateQueue if you want to hard delete messages
func (s *Sqlite) DeleteQueue(ctx context.Context, queueName string) (err error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var q queue.LiteQueue
		err = tx.GetContext(ctx, &q, `DELETE FROM queues where name = $1 returning *`, queueName)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", queue.ErrQueueNotFound, queueName)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO archived_queues (id, name, created_at) values ($1, $2, $3)`, q.Id, q.Name, q.CreatedAt)
		if err != nil {
			return err
		}

		var messages []queue.Message
		err = tx.SelectContext(ctx, &messages, `delete from messages where queue_id = $1 returning *`, queueName)
		if err != nil {
			return err
		}

		// nothing to archive
		if len(messages) == 0 {
			return nil
		}

		_, err = tx.NamedExecContext(ctx, `insert into archived_messages (id, message, status, queue_id, created_at, updated_at) VALUES (:id, :message, :status, :queue_id, :created_at, :updated_at)`, messages)
		if err != nil {
			return err
		}

		s.logger.Debug(fmt.Sprintf("archived queue %s with %d message(s)", queueName, len(messages)))
		return nil
	})
}

// TruncateQueue clears the contents of a queue, use DeleteQueue if you want to archive messages
func (s *Sqlite) TruncateQueue(ctx context.Context, queueName string) (err error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err = tx.ExecContext(ctx, `delete from messages where queue_id = $1`, queueName)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM queues where name = $1`, queueName)
		if err != nil {
			return err
		}
		return nil
	})
}

// Push puts an item on a queue
func (s *Sqlite) Push(ctx context.Context, message *queue.Message) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `select count(*) from queues where name = $1`, message.QueueId); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", queue.ErrQueueNotFound, message.QueueId)
		}

		writeQuery := `insert into messages (id, message, queue_id, visible_at) values ($1, $2, $3, $4)`
		_, innerErr := tx.ExecContext(ctx, writeQuery, message.Id, message.Message, message.QueueId, message.VisibleAt)
		if innerErr != nil {
			return innerErr
		}
		return nil
	})
}

// Pop claims the first visible item across all queues
func (s *Sqlite) Pop(ctx context.Context) (message *queue.Message, err error) {
	getFirstItem := `select id from messages where julianday(visible_at) <= julianday('now') and status = $1 order by id limit 1;`
	updateItemStatus := `update messages set status = $1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ') where id = $2 returning *;`

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		var rowValue id
		if getErr := tx.GetContext(ctx, &rowValue, getFirstItem, string(queue.StatusScheduled)); getErr != nil {
			return getErr
		}

		message = &queue.Message{}
		return tx.GetContext(ctx, message, updateItemStatus, string(queue.StatusActive), rowValue.Id)
	})

	// we don't care about "sql: no rows in result set" errors
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return message, nil
}

// UpdateMessageStatus moves a message along the status ladder
func (s *Sqlite) UpdateMessageStatus(ctx context.Context, msgId string, status queue.Status) (message *queue.Message, err error) {
	updateItemStatus := `update messages set status = $1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ') where id = $2 returning *;`
	getItemById := `select * from messages where id = $1`

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		var rowValue queue.Message
		if getErr := tx.GetContext(ctx, &rowValue, getItemById, msgId); getErr != nil {
			if errors.Is(getErr, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", queue.ErrMessageNotFound, msgId)
			}
			return getErr
		}

		if transitionErr := rowValue.Status.CheckTransition(status); transitionErr != nil {
			return transitionErr
		}

		message = &queue.Message{}
		return tx.GetContext(ctx, message, updateItemStatus, string(status), msgId)
	})
	if err != nil {
		return nil, err
	}

	return message, nil
}

// DeleteMessage removes a message from a queue and archives it
func (s *Sqlite) DeleteMessage(ctx context.Context, queueName string, msgId string) (err error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var msg queue.Message
		deleteQuery := `delete from messages where id = $1 and queue_id = $2 returning *`
		if getErr := tx.GetContext(ctx, &msg, deleteQuery, msgId, queueName); getErr != nil {
			if errors.Is(getErr, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", queue.ErrMessageNotFound, msgId)
			}
			return getErr
		}

		writeQuery := `insert into archived_messages (id, message, status, queue_id, created_at, updated_at) values ($1, $2, $3, $4, $5, $6)`
		_, innerErr := tx.ExecContext(ctx, writeQuery, msg.Id, msg.Message, string(msg.Status), msg.QueueId, msg.CreatedAt, msg.UpdatedAt)
		return innerErr
	})
}

// GetArchivedMessages gets the messages on the archived queue, newest first
func (s *Sqlite) GetArchivedMessages(ctx context.Context, queueName string) (messages []queue.Message, err error) {
	getArchivedMessages := `select * from archived_messages where queue_id = $1 order by id desc;`

	err = s.db.SelectContext(ctx, &messages, getArchivedMessages, queueName)
	return messages, err
}

// GetArchivedQueue gets the archived queue
func (s *Sqlite) GetArchivedQueue(ctx context.Context, queueName string) (q queue.ArchivedLiteQueue, err error) {
	err = s.db.GetContext(ctx, &q, `select * from archived_queues where name = $1 order by archived_at desc limit 1;`, queueName)
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, queueName)
	}

	return q, err
}

// CountMessages returns how many live messages of queueName are in status.
func (s *Sqlite) CountMessages(ctx context.Context, queueName string, status queue.Status) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `select count(*) from messages where queue_id = $1 and status = $2`, queueName, string(status))
	return n, err
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

func (s *Sqlite) inTx(ctx context.Context, cb func(*sqlx.Tx) error) (err error) {
	tx, beginErr := s.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("cannot start tx: %w", beginErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err = cb(tx); err != nil {
		return rollback(tx, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("cannot commit tx: %w", commitErr)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", rollbackErr, err)
	}
	return err
}
