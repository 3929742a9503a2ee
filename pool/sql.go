/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pool

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/rulego/hive/api/types"
)

// SQLPool is a database/sql handle sized by the pool registration.
type SQLPool struct {
	*sql.DB
	Key string
}

// SQLClass opens SQLPools. DriverName is a registered database/sql driver
// such as mysql or postgres.
type SQLClass struct {
	ClassName  string
	DriverName string
	Dsn        string
	// Ping verifies the connection when the pool is built.
	Ping bool
}

var _ types.PoolClass = (*SQLClass)(nil)

func (c *SQLClass) Name() string {
	return c.ClassName
}

// NewPool opens the database with min idle and max open connections.
func (c *SQLClass) NewPool(min, max int, key string) (types.Pool, error) {
	db, err := sql.Open(c.DriverName, c.Dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(max)
	db.SetMaxIdleConns(min)
	if c.Ping {
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &SQLPool{DB: db, Key: key}, nil
}
