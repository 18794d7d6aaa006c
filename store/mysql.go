package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq           BIGINT NOT NULL AUTO_INCREMENT,
	run_id        VARCHAR(191) NOT NULL,
	checkpoint_id VARCHAR(191) NOT NULL,
	label         VARCHAR(255),
	signature     VARCHAR(255),
	timestamp     DATETIME(6) NOT NULL,
	data          LONGBLOB NOT NULL,
	PRIMARY KEY (seq),
	UNIQUE KEY uniq_run_checkpoint (run_id, checkpoint_id)
) ENGINE=InnoDB;
`

// MySQLStore is the MySQL-backed CheckpointStore, sharing SQLStore's query
// bodies (database/sql placeholder syntax is identical across both
// drivers) and differing in DSN handling, schema DDL and the upsert
// statement in Save.
type MySQLStore struct {
	*SQLStore
}

// NewMySQLStore opens a MySQL-backed CheckpointStore using dsn (the
// go-sql-driver/mysql connection string), creating the checkpoints table
// if it does not already exist.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping mysql: %w", err)
	}
	if _, err := db.Exec(mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &MySQLStore{SQLStore: &SQLStore{db: db}}, nil
}

func (s *MySQLStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, checkpoint_id, label, signature, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			label = VALUES(label), signature = VALUES(signature),
			timestamp = VALUES(timestamp), data = VALUES(data)
	`, rec.RunID, rec.CheckpointID, rec.Label, rec.Signature, rec.Timestamp, rec.Data)
	if err != nil {
		return fmt.Errorf("store: save checkpoint: %w", err)
	}
	return nil
}
