/*
Copyright 2025 Steward Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/stewardhq/steward/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "database is unreachable")
	}
	err = createWorkItemTable(db)
	if err != nil {
		return nil, err
	}
	err = createApprovalRequestTable(db)
	if err != nil {
		return nil, err
	}
	err = createAuditEntryTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	// Generate a new UUID
	id := uuid.New()

	// Convert the UUID to a string
	uuidStr := id.String()

	// Add the module suffix
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)

	return idWithSuffix
}

// createWorkItemTable creates a PostgreSQL table for the WorkItem struct
func createWorkItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS work_items (
			id SERIAL PRIMARY KEY,
			work_item_id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			payload JSONB,
			meta_data JSONB,
			state TEXT NOT NULL,
			priority TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_transition_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createApprovalRequestTable creates a PostgreSQL table for the ApprovalRequest struct
func createApprovalRequestTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS approval_requests (
			id SERIAL PRIMARY KEY,
			approval_id TEXT NOT NULL UNIQUE,
			work_item_id TEXT,
			action_kind TEXT NOT NULL,
			title TEXT NOT NULL,
			details JSONB,
			decision TEXT NOT NULL DEFAULT 'pending',
			approver TEXT,
			manual BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP
		)
	`)
	log.Println(err)
	return err
}

// createAuditEntryTable creates a PostgreSQL table for the AuditEntry struct.
// log_date carries the day partition so retention can drop whole days at once.
func createAuditEntryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_entries (
			id SERIAL PRIMARY KEY,
			log_date DATE NOT NULL DEFAULT CURRENT_DATE,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
			action_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			domain TEXT,
			target TEXT,
			parameters JSONB,
			approval_status TEXT,
			approved_by TEXT,
			result TEXT NOT NULL,
			error TEXT
		)
	`)
	log.Println(err)
	return err
}
