package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Millisecond epochs are stored as BIGINT so deadline arithmetic never
// touches DATETIME rounding or session time zones.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS secrets (
		id                     CHAR(36)     NOT NULL,
		user_id                CHAR(36)     NOT NULL,
		owner_email            VARCHAR(320) NOT NULL,
		title                  VARCHAR(255) NOT NULL,
		check_in_interval_days INT          NOT NULL,
		last_check_in          BIGINT       NOT NULL,
		next_check_in          BIGINT       NOT NULL,
		status                 ENUM('active','paused','triggered') NOT NULL DEFAULT 'active',
		encrypted_payload      MEDIUMBLOB   NULL,
		created_at             DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at             DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_secrets_due (status, next_check_in)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS recipients (
		id         CHAR(36)     NOT NULL,
		secret_id  CHAR(36)     NOT NULL,
		position   INT          NOT NULL,
		name       VARCHAR(255) NOT NULL,
		email      VARCHAR(320) NOT NULL DEFAULT '',
		phone      VARCHAR(32)  NOT NULL DEFAULT '',
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_recipients_secret (secret_id, position),
		CONSTRAINT fk_recipients_secret FOREIGN KEY (secret_id)
			REFERENCES secrets (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS check_in_tokens (
		token      CHAR(64)  NOT NULL,
		secret_id  CHAR(36)  NOT NULL,
		expires_at BIGINT    NOT NULL,
		used_at    BIGINT    NULL,
		created_at BIGINT    NOT NULL,
		PRIMARY KEY (token),
		KEY idx_tokens_expiry (expires_at),
		CONSTRAINT fk_tokens_secret FOREIGN KEY (secret_id)
			REFERENCES secrets (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reminder_log (
		id                  BIGINT      NOT NULL AUTO_INCREMENT,
		secret_id           CHAR(36)    NOT NULL,
		tier                VARCHAR(16) NOT NULL,
		cycle_last_check_in BIGINT      NOT NULL,
		sent_at             BIGINT      NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_reminder_cycle (secret_id, tier, cycle_last_check_in),
		CONSTRAINT fk_reminders_secret FOREIGN KEY (secret_id)
			REFERENCES secrets (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS email_failures (
		id            CHAR(36)     NOT NULL,
		email_type    VARCHAR(32)  NOT NULL,
		provider      VARCHAR(64)  NOT NULL,
		recipient     VARCHAR(320) NOT NULL,
		subject       VARCHAR(255) NOT NULL,
		error_message TEXT         NOT NULL,
		retry_count   INT          NOT NULL DEFAULT 0,
		created_at    BIGINT       NOT NULL,
		resolved_at   BIGINT       NULL,
		PRIMARY KEY (id),
		KEY idx_failures_open (email_type, recipient, resolved_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema idempotently. Statements only use
// CREATE TABLE IF NOT EXISTS, so running it on every boot is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
